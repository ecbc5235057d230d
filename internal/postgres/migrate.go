package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'customer' CHECK (role IN ('customer','admin')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		category_id UUID NOT NULL REFERENCES categories(id),
		price NUMERIC(10,2) NOT NULL,
		profit NUMERIC(10,2) NOT NULL DEFAULT 0,
		stock INT NOT NULL DEFAULT 0 CHECK (stock >= 0),
		image TEXT,
		description TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		total NUMERIC(10,2) NOT NULL,
		status TEXT NOT NULL DEFAULT 'placed'
			CHECK (status IN ('placed','confirmed','in_preparation','ready','delivered','cancelled')),
		payment_method TEXT NOT NULL CHECK (payment_method IN ('cash','nequi','daviplata')),
		payment_proof TEXT,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		id BIGSERIAL PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders(id),
		product_id UUID NOT NULL REFERENCES products(id),
		quantity INT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(10,2) NOT NULL,
		subtotal NUMERIC(10,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_order_lines_order_id ON order_lines(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category_id ON products(category_id)`,
}

var defaultCategories = []string{
	"Bakery", "Drinks", "Fruits", "Sweets",
	"Ice Cream", "Cookies", "Copies", "Supplies",
}

// Migrate applies the idempotent schema and seeds the default categories
// plus the bootstrap admin account.
func Migrate(ctx context.Context, db *pgxpool.Pool, adminEmail, adminPassword string) error {
	for _, stmt := range ddl {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	for _, name := range defaultCategories {
		_, err := db.Exec(ctx,
			`INSERT INTO categories (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), name)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", name, err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, 'Administrator', $2, $3, 'admin')
		ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), adminEmail, string(hash))
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
