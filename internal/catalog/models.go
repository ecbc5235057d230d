package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Price        decimal.Decimal `json:"price"`
	Profit       decimal.Decimal `json:"profit"`
	Stock        int             `json:"stock"`
	Image        *string         `json:"image"`
	Description  string          `json:"description"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductInput carries the admin-editable fields of a product.
type ProductInput struct {
	Name        string
	CategoryID  string
	Price       decimal.Decimal
	Profit      decimal.Decimal
	Stock       int
	Image       *string
	Description string
}
