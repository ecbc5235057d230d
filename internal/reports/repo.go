package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo runs the read-only admin aggregations. These queries sit outside the
// order transaction and may observe slightly stale data.
type Repo struct{ DB *pgxpool.Pool }

type DailySales struct {
	Date          string               `json:"date"`
	OrderCount    int                  `json:"order_count"`
	Revenue       decimal.Decimal      `json:"revenue"`
	AverageTicket decimal.Decimal      `json:"average_ticket"`
	TopProducts   []ProductSales       `json:"top_products"`
	ByPayment     []PaymentMethodSales `json:"by_payment_method"`
}

type ProductSales struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	CategoryName string          `json:"category_name"`
	UnitsSold    int             `json:"units_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type PaymentMethodSales struct {
	Method     string          `json:"method"`
	OrderCount int             `json:"order_count"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// DailySales aggregates the given day's non-cancelled orders.
func (r *Repo) DailySales(ctx context.Context, date string) (*DailySales, error) {
	out := &DailySales{Date: date, Revenue: decimal.Zero, AverageTicket: decimal.Zero}

	var revenue, avg *decimal.Decimal
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*), SUM(total), AVG(total)
		FROM orders
		WHERE created_at::date = $1 AND status <> 'cancelled'`, date).
		Scan(&out.OrderCount, &revenue, &avg)
	if err != nil {
		return nil, err
	}
	if revenue != nil {
		out.Revenue = *revenue
	}
	if avg != nil {
		out.AverageTicket = avg.Round(2)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.name, c.name, SUM(l.quantity)::int, SUM(l.subtotal)
		FROM order_lines l
		JOIN products p ON l.product_id = p.id
		JOIN categories c ON p.category_id = c.id
		JOIN orders o ON l.order_id = o.id
		WHERE o.created_at::date = $1 AND o.status <> 'cancelled'
		GROUP BY p.id, p.name, c.name
		ORDER BY SUM(l.quantity) DESC
		LIMIT 10`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ps ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.CategoryName, &ps.UnitsSold, &ps.Revenue); err != nil {
			return nil, err
		}
		out.TopProducts = append(out.TopProducts, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := r.DB.Query(ctx, `
		SELECT payment_method, COUNT(*), SUM(total)
		FROM orders
		WHERE created_at::date = $1 AND status <> 'cancelled'
		GROUP BY payment_method`, date)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var pm PaymentMethodSales
		if err := prows.Scan(&pm.Method, &pm.OrderCount, &pm.Revenue); err != nil {
			return nil, err
		}
		out.ByPayment = append(out.ByPayment, pm)
	}
	return out, prows.Err()
}

type ProfitLine struct {
	Name         string          `json:"name"`
	CategoryName string          `json:"category_name,omitempty"`
	UnitsSold    int             `json:"units_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
	Profit       decimal.Decimal `json:"profit"`
}

type ProfitReport struct {
	ByProduct    []ProfitLine    `json:"by_product"`
	ByCategory   []ProfitLine    `json:"by_category"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
}

// Profits computes margin as quantity x the product's current per-unit
// profit, over non-cancelled orders in the date range (either bound may be
// empty).
func (r *Repo) Profits(ctx context.Context, from, to string) (*ProfitReport, error) {
	where := `WHERE o.status <> 'cancelled'`
	args := []any{}
	if from != "" {
		args = append(args, from)
		where += ` AND o.created_at::date >= $1`
	}
	if to != "" {
		args = append(args, to)
		if from != "" {
			where += ` AND o.created_at::date <= $2`
		} else {
			where += ` AND o.created_at::date <= $1`
		}
	}

	out := &ProfitReport{TotalRevenue: decimal.Zero, TotalProfit: decimal.Zero}

	rows, err := r.DB.Query(ctx, `
		SELECT p.name, c.name, SUM(l.quantity)::int, SUM(l.subtotal), SUM(l.quantity * p.profit)
		FROM order_lines l
		JOIN products p ON l.product_id = p.id
		JOIN categories c ON p.category_id = c.id
		JOIN orders o ON l.order_id = o.id
		`+where+`
		GROUP BY p.id, p.name, c.name
		ORDER BY SUM(l.quantity * p.profit) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pl ProfitLine
		if err := rows.Scan(&pl.Name, &pl.CategoryName, &pl.UnitsSold, &pl.Revenue, &pl.Profit); err != nil {
			return nil, err
		}
		out.ByProduct = append(out.ByProduct, pl)
		out.TotalRevenue = out.TotalRevenue.Add(pl.Revenue)
		out.TotalProfit = out.TotalProfit.Add(pl.Profit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := r.DB.Query(ctx, `
		SELECT c.name, SUM(l.quantity)::int, SUM(l.subtotal), SUM(l.quantity * p.profit)
		FROM order_lines l
		JOIN products p ON l.product_id = p.id
		JOIN categories c ON p.category_id = c.id
		JOIN orders o ON l.order_id = o.id
		`+where+`
		GROUP BY c.id, c.name
		ORDER BY SUM(l.quantity * p.profit) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var pl ProfitLine
		if err := crows.Scan(&pl.Name, &pl.UnitsSold, &pl.Revenue, &pl.Profit); err != nil {
			return nil, err
		}
		out.ByCategory = append(out.ByCategory, pl)
	}
	return out, crows.Err()
}

type LowStockProduct struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	CategoryName string          `json:"category_name"`
	Stock        int             `json:"stock"`
	Price        decimal.Decimal `json:"price"`
}

func (r *Repo) LowStock(ctx context.Context, threshold int) ([]LowStockProduct, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.name, c.name, p.stock, p.price
		FROM products p JOIN categories c ON p.category_id = c.id
		WHERE p.active = TRUE AND p.stock <= $1
		ORDER BY p.stock ASC`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LowStockProduct
	for rows.Next() {
		var lp LowStockProduct
		if err := rows.Scan(&lp.ProductID, &lp.Name, &lp.CategoryName, &lp.Stock, &lp.Price); err != nil {
			return nil, err
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

type PeriodStats struct {
	OrderCount int             `json:"order_count"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type Dashboard struct {
	Today         PeriodStats `json:"today"`
	Week          PeriodStats `json:"week"`
	Month         PeriodStats `json:"month"`
	OpenOrders    int         `json:"open_orders"`
	LowStockCount int         `json:"low_stock_count"`
}

func (r *Repo) DashboardStats(ctx context.Context, now time.Time) (*Dashboard, error) {
	today := now.Format("2006-01-02")
	weekStart := now.AddDate(0, 0, -int(now.Weekday())).Format("2006-01-02")
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02")

	d := &Dashboard{}
	for _, q := range []struct {
		since string
		dst   *PeriodStats
	}{
		{today, &d.Today},
		{weekStart, &d.Week},
		{monthStart, &d.Month},
	} {
		var revenue *decimal.Decimal
		err := r.DB.QueryRow(ctx, `
			SELECT COUNT(*), SUM(total) FROM orders
			WHERE created_at::date >= $1 AND status <> 'cancelled'`, q.since).
			Scan(&q.dst.OrderCount, &revenue)
		if err != nil {
			return nil, err
		}
		q.dst.Revenue = decimal.Zero
		if revenue != nil {
			q.dst.Revenue = *revenue
		}
	}

	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE status IN ('placed','confirmed','in_preparation')`).Scan(&d.OpenOrders)
	if err != nil {
		return nil, err
	}
	err = r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM products WHERE active = TRUE AND stock <= 10`).Scan(&d.LowStockCount)
	if err != nil {
		return nil, err
	}
	return d, nil
}
