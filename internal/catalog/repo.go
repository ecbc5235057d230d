package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound         = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
)

type Repo struct{ DB *pgxpool.Pool }

const productCols = `p.id, p.name, p.category_id, c.name, p.price, p.profit, p.stock,
	p.image, p.description, p.active, p.created_at, p.updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.Price, &p.Profit,
		&p.Stock, &p.Image, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type ListFilter struct {
	CategoryID string
	Search     string
	Limit      int
	Offset     int
}

// List returns active products only; the admin edit surface goes through Get.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Product, error) {
	query := `SELECT ` + productCols + `
		FROM products p JOIN categories c ON p.category_id = c.id
		WHERE p.active = TRUE`
	args := []any{}

	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		query += ` AND p.category_id = $` + strconv.Itoa(len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (p.name ILIKE $` + n + ` OR p.description ILIKE $` + n + `)`
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	args = append(args, f.Limit, f.Offset)
	query += ` ORDER BY p.name ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.Price, &p.Profit,
			&p.Stock, &p.Image, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (*Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `
		SELECT `+productCols+`
		FROM products p JOIN categories c ON p.category_id = c.id
		WHERE p.id = $1 AND p.active = TRUE`, id))
}

func (r *Repo) Create(ctx context.Context, in ProductInput) (*Product, error) {
	if ok, err := r.categoryExists(ctx, in.CategoryID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrCategoryNotFound
	}

	id := uuid.NewString()
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products (id, name, category_id, price, profit, stock, image, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, in.Name, in.CategoryID, in.Price, in.Profit, in.Stock, in.Image, in.Description)
	if err != nil {
		return nil, err
	}
	return scanProduct(r.DB.QueryRow(ctx, `
		SELECT `+productCols+`
		FROM products p JOIN categories c ON p.category_id = c.id
		WHERE p.id = $1`, id))
}

func (r *Repo) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if ok, err := r.categoryExists(ctx, in.CategoryID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrCategoryNotFound
	}

	var query string
	args := []any{id, in.Name, in.CategoryID, in.Price, in.Profit, in.Stock, in.Description}
	if in.Image != nil {
		query = `UPDATE products SET name=$2, category_id=$3, price=$4, profit=$5, stock=$6,
			description=$7, image=$8, updated_at=now() WHERE id=$1 AND active=TRUE`
		args = append(args, in.Image)
	} else {
		query = `UPDATE products SET name=$2, category_id=$3, price=$4, profit=$5, stock=$6,
			description=$7, updated_at=now() WHERE id=$1 AND active=TRUE`
	}
	ct, err := r.DB.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return scanProduct(r.DB.QueryRow(ctx, `
		SELECT `+productCols+`
		FROM products p JOIN categories c ON p.category_id = c.id
		WHERE p.id = $1`, id))
}

// Deactivate is a soft delete; historical order lines keep their reference.
func (r *Repo) Deactivate(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET active=FALSE, updated_at=now() WHERE id=$1 AND active=TRUE`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Categories(ctx context.Context) ([]Category, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) categoryExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM categories WHERE id=$1`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
