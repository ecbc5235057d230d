package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentCash      = "cash"
	PaymentNequi     = "nequi"
	PaymentDaviplata = "daviplata"
)

func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCash, PaymentNequi, PaymentDaviplata:
		return true
	}
	return false
}

// MaxNotesLen bounds the free-text notes on an order.
const MaxNotesLen = 500

type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	UserName      string          `json:"user_name,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Status        Status          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	PaymentProof  *string         `json:"payment_proof"`
	Notes         string          `json:"notes"`
	Lines         []Line          `json:"lines"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Line is immutable once written: UnitPrice is the snapshot taken inside the
// placement transaction, not the product's current price.
type Line struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceRequest struct {
	UserID        string
	Items         []CartItem
	PaymentMethod string
	Notes         string
}
