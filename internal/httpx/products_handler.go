package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"school-store/internal/catalog"
	"school-store/internal/uploads"
)

// CatalogStore is the slice of catalog.Repo the product endpoints need.
type CatalogStore interface {
	List(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, error)
	Get(ctx context.Context, id string) (*catalog.Product, error)
	Create(ctx context.Context, in catalog.ProductInput) (*catalog.Product, error)
	Update(ctx context.Context, id string, in catalog.ProductInput) (*catalog.Product, error)
	Deactivate(ctx context.Context, id string) error
	Categories(ctx context.Context) ([]catalog.Category, error)
}

type ProductsHandler struct {
	Catalog CatalogStore
	Uploads *uploads.Store
}

func (h *ProductsHandler) Register(r chi.Router, authed, admin func(http.Handler) http.Handler) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
	r.Get("/categories", h.categories)
	r.Get("/uploads/products/{filename}", h.serveImage)

	r.Group(func(r chi.Router) {
		r.Use(authed, admin)
		r.Post("/products", h.create)
		r.Put("/products/{id}", h.update)
		r.Delete("/products/{id}", h.remove)
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	ps, err := h.Catalog.List(r.Context(), catalog.ListFilter{
		CategoryID: q.Get("category_id"),
		Search:     q.Get("search"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list products")
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load product")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) categories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Catalog.Categories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list categories")
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// parseProductForm reads the multipart product form, storing the optional
// image file; input.Image stays nil when no file was sent.
func (h *ProductsHandler) parseProductForm(r *http.Request) (catalog.ProductInput, error) {
	if err := r.ParseMultipartForm(uploads.ProductImages.MaxSize + 1<<20); err != nil {
		return catalog.ProductInput{}, errBadForm
	}

	in := catalog.ProductInput{
		Name:        strings.TrimSpace(r.FormValue("name")),
		CategoryID:  r.FormValue("category_id"),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if l := len(in.Name); l < 2 || l > 100 {
		return in, errors.New("name must be 2-100 characters")
	}
	if in.CategoryID == "" {
		return in, errors.New("category_id required")
	}
	if len(in.Description) > 500 {
		return in, errors.New("description too long")
	}

	var err error
	if in.Price, err = decimal.NewFromString(r.FormValue("price")); err != nil || in.Price.IsNegative() {
		return in, errors.New("price must be a non-negative number")
	}
	if in.Profit, err = decimal.NewFromString(r.FormValue("profit")); err != nil || in.Profit.IsNegative() {
		return in, errors.New("profit must be a non-negative number")
	}
	if v := r.FormValue("stock"); v != "" {
		if in.Stock, err = strconv.Atoi(v); err != nil || in.Stock < 0 {
			return in, errors.New("stock must be a non-negative integer")
		}
	}

	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return in, nil
	}
	if err != nil {
		return in, errBadForm
	}
	defer file.Close()

	path, err := h.Uploads.Save(uploads.ProductImages, header.Filename, file, header.Size)
	if err != nil {
		return in, err
	}
	in.Image = &path
	return in, nil
}

var errBadForm = errors.New("invalid form data")

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseProductForm(r)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}

	p, err := h.Catalog.Create(r.Context(), in)
	if errors.Is(err, catalog.ErrCategoryNotFound) {
		writeError(w, http.StatusBadRequest, "category not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create product")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	prev, err := h.Catalog.Get(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load product")
		return
	}

	in, err := h.parseProductForm(r)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}

	p, err := h.Catalog.Update(r.Context(), id, in)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if errors.Is(err, catalog.ErrCategoryNotFound) {
		writeError(w, http.StatusBadRequest, "category not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not update product")
		return
	}

	// replaced image: drop the old file once the row points at the new one
	if in.Image != nil && prev.Image != nil && *prev.Image != *in.Image {
		_ = h.Uploads.Remove(*prev.Image)
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) remove(w http.ResponseWriter, r *http.Request) {
	err := h.Catalog.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not delete product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

func (h *ProductsHandler) serveImage(w http.ResponseWriter, r *http.Request) {
	f, err := h.Uploads.Open(uploads.ProductImages, chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not serve image")
		return
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, uploads.ErrBadFileType):
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}
