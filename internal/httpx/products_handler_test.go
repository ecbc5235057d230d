package httpx

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-store/internal/catalog"
	"school-store/internal/uploads"
)

type fakeCatalog struct {
	gotInput *catalog.ProductInput
	product  *catalog.Product
	err      error
}

func (f *fakeCatalog) List(_ context.Context, _ catalog.ListFilter) ([]catalog.Product, error) {
	return nil, f.err
}

func (f *fakeCatalog) Get(_ context.Context, _ string) (*catalog.Product, error) {
	return f.product, f.err
}

func (f *fakeCatalog) Create(_ context.Context, in catalog.ProductInput) (*catalog.Product, error) {
	f.gotInput = &in
	return f.product, f.err
}

func (f *fakeCatalog) Update(_ context.Context, _ string, in catalog.ProductInput) (*catalog.Product, error) {
	f.gotInput = &in
	return f.product, f.err
}

func (f *fakeCatalog) Deactivate(_ context.Context, _ string) error { return f.err }

func (f *fakeCatalog) Categories(_ context.Context) ([]catalog.Category, error) {
	return nil, f.err
}

func newProductsRouter(t *testing.T, fc *fakeCatalog) *chi.Mux {
	t.Helper()
	store, err := uploads.NewStore(t.TempDir())
	require.NoError(t, err)

	r := chi.NewRouter()
	h := &ProductsHandler{Catalog: fc, Uploads: store}
	h.Register(r, injectUser(testAdmin), passthrough)
	return r
}

func productForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func validProductFields() map[string]string {
	return map[string]string{
		"name":        "Empanada de pollo",
		"category_id": "c-1",
		"price":       "2500.00",
		"profit":      "800.00",
		"stock":       "20",
	}
}

func TestCreateProduct(t *testing.T) {
	fc := &fakeCatalog{product: &catalog.Product{ID: "p-1", Name: "Empanada de pollo"}}
	r := newProductsRouter(t, fc)

	body, ct := productForm(t, validProductFields())
	req := httptest.NewRequest(http.MethodPost, "/products", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, fc.gotInput)
	assert.True(t, fc.gotInput.Price.Equal(decimal.RequireFromString("2500.00")))
	assert.Equal(t, 20, fc.gotInput.Stock)
	assert.Nil(t, fc.gotInput.Image, "no file sent, no image path")
}

func TestCreateProductValidation(t *testing.T) {
	mutations := []struct {
		name   string
		field  string
		value  string
	}{
		{"short name", "name", "X"},
		{"missing category", "category_id", ""},
		{"negative price", "price", "-5"},
		{"price not a number", "price", "abc"},
		{"negative profit", "profit", "-1"},
		{"negative stock", "stock", "-3"},
	}
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCatalog{product: &catalog.Product{ID: "p-1"}}
			r := newProductsRouter(t, fc)

			fields := validProductFields()
			fields[tt.field] = tt.value
			body, ct := productForm(t, fields)
			req := httptest.NewRequest(http.MethodPost, "/products", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, fc.gotInput, "repo must not be reached")
		})
	}
}

func TestCreateProductUnknownCategory(t *testing.T) {
	fc := &fakeCatalog{err: catalog.ErrCategoryNotFound}
	r := newProductsRouter(t, fc)

	body, ct := productForm(t, validProductFields())
	req := httptest.NewRequest(http.MethodPost, "/products", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProductNotFound(t *testing.T) {
	r := newProductsRouter(t, &fakeCatalog{err: catalog.ErrNotFound})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/p-9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProductsEmptyIsArray(t *testing.T) {
	r := newProductsRouter(t, &fakeCatalog{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}
