package orders

import (
	"context"
	"strings"
)

// Placer is the slice of Repo the service needs; narrow interface for
// testability.
type Placer interface {
	Place(ctx context.Context, req PlaceRequest) (*Order, error)
}

// Service validates a placement request before handing it to the
// transactional repo. Validation failures never reach the database.
type Service struct {
	Repo Placer
}

func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if !ValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if len(req.Notes) > MaxNotesLen {
		return nil, ErrNotesTooLong
	}
	return s.Repo.Place(ctx, req)
}
