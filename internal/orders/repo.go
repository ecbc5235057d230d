package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

// querier is the read surface shared by the pool and an open transaction,
// so order reads can run either standalone or inside a pending tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Place runs the whole order placement as one transaction: per-line product
// lock, stock check, price snapshot, order + line inserts and the stock
// decrement. Any failure rolls the whole thing back; on success the returned
// order carries its resolved lines.
//
// Each product row is locked with FOR UPDATE before its stock is read, and
// the decrement happens in the same iteration, so a cart naming the same
// product twice sees its own earlier decrement, and concurrent placements
// against a shared product serialize on the row lock.
func (r *Repo) Place(ctx context.Context, req PlaceRequest) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	defer tx.Rollback(ctx)

	orderID := uuid.NewString()
	total := decimal.Zero
	lines := make([]Line, 0, len(req.Items))

	for _, it := range req.Items {
		var (
			name  string
			price decimal.Decimal
			stock int
		)
		err := tx.QueryRow(ctx,
			`SELECT name, price, stock FROM products WHERE id=$1 AND active=TRUE FOR UPDATE`,
			it.ProductID).Scan(&name, &price, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if err != nil {
			return nil, &PersistenceError{Err: err}
		}

		if stock < it.Quantity {
			return nil, &InsufficientStockError{
				ProductID: it.ProductID,
				Name:      name,
				Requested: it.Quantity,
				Available: stock,
			}
		}

		// guarded decrement; the row lock is already held, the stock
		// predicate is a second line of defense alongside the CHECK constraint
		ct, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1 AND stock >= $2`,
			it.ProductID, it.Quantity)
		if err != nil {
			return nil, &PersistenceError{Err: err}
		}
		if ct.RowsAffected() != 1 {
			return nil, &InsufficientStockError{
				ProductID: it.ProductID,
				Name:      name,
				Requested: it.Quantity,
				Available: stock,
			}
		}

		subtotal := price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(subtotal)
		lines = append(lines, Line{
			OrderID:     orderID,
			ProductID:   it.ProductID,
			ProductName: name,
			Quantity:    it.Quantity,
			UnitPrice:   price,
			Subtotal:    subtotal,
		})
	}

	var createdAt, updatedAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, total, status, payment_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		orderID, req.UserID, total, StatusPlaced, req.PaymentMethod, req.Notes).
		Scan(&createdAt, &updatedAt)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	for i := range lines {
		err = tx.QueryRow(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			lines[i].OrderID, lines[i].ProductID, lines[i].Quantity,
			lines[i].UnitPrice, lines[i].Subtotal).
			Scan(&lines[i].ID)
		if err != nil {
			return nil, &PersistenceError{Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	return &Order{
		ID:            orderID,
		UserID:        req.UserID,
		Total:         total,
		Status:        StatusPlaced,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Lines:         lines,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

const orderCols = `o.id, o.user_id, u.name, o.total, o.status, o.payment_method,
	o.payment_proof, o.notes, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.UserName, &o.Total, &o.Status, &o.PaymentMethod,
		&o.PaymentProof, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) Get(ctx context.Context, orderID string) (*Order, error) {
	return getOrder(ctx, r.DB, orderID)
}

func getOrder(ctx context.Context, q querier, orderID string) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `
		SELECT `+orderCols+` FROM orders o JOIN users u ON o.user_id = u.id
		WHERE o.id=$1`, orderID))
	if err != nil {
		return nil, err
	}
	return withLines(ctx, q, o)
}

// GetForUser returns ErrNotFound for another user's order rather than 403,
// so order ids cannot be enumerated.
func (r *Repo) GetForUser(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		SELECT `+orderCols+` FROM orders o JOIN users u ON o.user_id = u.id
		WHERE o.id=$1 AND o.user_id=$2`, orderID, userID))
	if err != nil {
		return nil, err
	}
	return withLines(ctx, r.DB, o)
}

type ListFilter struct {
	UserID string
	Status Status
	From   string // YYYY-MM-DD, inclusive
	To     string // YYYY-MM-DD, inclusive
	Limit  int
	Offset int
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders o JOIN users u ON o.user_id = u.id WHERE 1=1`
	args := []any{}

	if f.UserID != "" {
		args = append(args, f.UserID)
		query += ` AND o.user_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += ` AND o.status = $` + strconv.Itoa(len(args))
	}
	if f.From != "" {
		args = append(args, f.From)
		query += ` AND o.created_at::date >= $` + strconv.Itoa(len(args))
	}
	if f.To != "" {
		args = append(args, f.To)
		query += ` AND o.created_at::date <= $` + strconv.Itoa(len(args))
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	args = append(args, f.Limit, f.Offset)
	query += ` ORDER BY o.created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.UserName, &o.Total, &o.Status, &o.PaymentMethod,
			&o.PaymentProof, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if _, err := withLines(ctx, r.DB, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func withLines(ctx context.Context, q querier, o *Order) (*Order, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id, l.order_id, l.product_id, p.name, l.quantity, l.unit_price, l.subtotal
		FROM order_lines l JOIN products p ON l.product_id = p.id
		WHERE l.order_id = $1
		ORDER BY l.id`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o.Lines = o.Lines[:0]
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName,
			&l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

// GetStatus returns the order's status together with the owning user id so
// callers can enforce ownership before answering.
func (r *Repo) GetStatus(ctx context.Context, orderID string) (Status, string, error) {
	var (
		s     Status
		owner string
	)
	err := r.DB.QueryRow(ctx, `SELECT status, user_id FROM orders WHERE id=$1`, orderID).Scan(&s, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrNotFound
	}
	return s, owner, err
}

// UpdateStatus moves an order along the transition table. Cancelling returns
// the ordered quantities to stock in the same transaction.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	defer tx.Rollback(ctx)

	var from Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if !CanTransition(from, to) {
		return nil, ErrInvalidTransition
	}

	if to == StatusCancelled {
		if err := restock(ctx, tx, orderID); err != nil {
			return nil, &PersistenceError{Err: err}
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, to); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	// read back inside the tx; once the commit lands the caller always gets
	// the order that was committed
	o, err := getOrder(ctx, tx, orderID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return o, nil
}

func restock(ctx context.Context, tx pgx.Tx, orderID string) error {
	rows, err := tx.Query(ctx, `SELECT product_id, quantity FROM order_lines WHERE order_id=$1`, orderID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			return err
		}
		recs = append(recs, x)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, x.pid, x.qty); err != nil {
			return err
		}
	}
	return nil
}

// AttachProof records a payment-proof file path; only allowed while the
// order is still placed and owned by the caller. The status check and the
// write share one transaction, with the row locked so a concurrent status
// transition cannot slip between them.
func (r *Repo) AttachProof(ctx context.Context, orderID, userID, path string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &PersistenceError{Err: err}
	}
	defer tx.Rollback(ctx)

	var st Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id=$1 AND user_id=$2 FOR UPDATE`, orderID, userID).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return &PersistenceError{Err: err}
	}
	if st != StatusPlaced {
		return ErrProofNotAllowed
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET payment_proof=$3, updated_at=now() WHERE id=$1 AND user_id=$2`,
		orderID, userID, path); err != nil {
		return &PersistenceError{Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}
