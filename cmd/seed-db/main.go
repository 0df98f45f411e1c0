// Command seed-db populates a development database with demo accounts,
// products, carts, and coupons.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/giftible/marketplace/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := seedAccounts(ctx, tx); err != nil {
			return errors.Wrap(err, "seed accounts")
		}
		if err := seedProducts(ctx, tx); err != nil {
			return errors.Wrap(err, "seed products")
		}
		if err := seedCoupons(ctx, tx); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
		if err := seedCart(ctx, tx); err != nil {
			return errors.Wrap(err, "seed cart")
		}
		return nil
	})
}

// Demo accounts: one customer, two NGOs, one admin. Ids are fixed so the
// seeded products and carts can reference them.
func seedAccounts(ctx context.Context, tx pgx.Tx) error {
	slog.Info("seeding accounts")

	const insertUserSQL = `INSERT INTO users (id, first_name, last_name, role, ngo_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	accounts := []struct {
		id                  int64
		firstName, lastName string
		role, ngoName       string
	}{
		{1, "Asha", "Verma", "user", ""},
		{2, "Hope", "Foundation", "ngo", "Hope Foundation"},
		{3, "Green", "Earth", "ngo", "Green Earth Trust"},
		{4, "Platform", "Admin", "admin", ""},
	}
	for _, a := range accounts {
		var ngoName any
		if a.ngoName != "" {
			ngoName = a.ngoName
		}
		if _, err := tx.Exec(ctx, insertUserSQL, a.id, a.firstName, a.lastName, a.role, ngoName); err != nil {
			return errors.Wrapf(err, "insert user %d", a.id)
		}
	}

	const insertAddressSQL = `INSERT INTO addresses (id, user_id, full_name, address_line, city, state, pincode)
		VALUES (1, 1, 'Asha Verma', '12 Demo Street', 'Mumbai', 'Maharashtra', '400001')
		ON CONFLICT (id) DO NOTHING`
	if _, err := tx.Exec(ctx, insertAddressSQL); err != nil {
		return errors.Wrap(err, "insert address")
	}

	_, err := tx.Exec(ctx, `SELECT setval('users_id_seq', GREATEST(100, (SELECT MAX(id) FROM users)))`)
	return err
}

func seedProducts(ctx context.Context, tx pgx.Tx) error {
	slog.Info("seeding products")

	const insertProductSQL = `INSERT INTO products (id, ngo_id, name, price, is_live)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO NOTHING`

	products := []struct {
		id    int64
		ngoID int64
		name  string
		price string
	}{
		{1, 2, "Handwoven Cotton Scarf", "450.00"},
		{2, 2, "Recycled Paper Notebook", "120.00"},
		{3, 3, "Organic Beeswax Candles", "300.00"},
		{4, 3, "Bamboo Planter Set", "750.00"},
	}
	for _, p := range products {
		if _, err := tx.Exec(ctx, insertProductSQL, p.id, p.ngoID, p.name, p.price); err != nil {
			return errors.Wrapf(err, "insert product %s", p.name)
		}
	}

	_, err := tx.Exec(ctx, `SELECT setval('products_id_seq', GREATEST(100, (SELECT MAX(id) FROM products)))`)
	return err
}

// The customer gets a pre-filled cart so a checkout can be exercised
// right after seeding.
func seedCart(ctx context.Context, tx pgx.Tx) error {
	slog.Info("seeding cart")

	var cartID int64
	err := tx.QueryRow(ctx, `INSERT INTO carts (user_id) VALUES (1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id`).Scan(&cartID)
	if err != nil {
		return errors.Wrap(err, "insert cart")
	}

	lines := []struct {
		productID int64
		quantity  int
	}{
		{1, 1},
		{3, 2},
	}
	for _, l := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO cart_items (cart_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (cart_id, product_id) DO NOTHING`,
			cartID, l.productID, l.quantity,
		); err != nil {
			return errors.Wrapf(err, "insert cart line for product %d", l.productID)
		}
	}
	return nil
}

func seedCoupons(ctx context.Context, tx pgx.Tx) error {
	slog.Info("seeding coupons")

	const insertCouponSQL = `INSERT INTO coupons
		(code, discount_percentage, max_discount, usage_limit, minimum_order_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (code) DO NOTHING`

	coupons := []struct {
		code       string
		percentage string
		maxAmount  string
		limit      string
		minimum    string
	}{
		{"WELCOME10", "10", "100.00", "one_time", "0"},
		{"SAVE20", "20", "200.00", "one_per_day", "500.00"},
		{"FESTIVE25", "25", "250.00", "one_time", "1000.00"},
	}
	for _, c := range coupons {
		if _, err := tx.Exec(ctx, insertCouponSQL,
			c.code, c.percentage, c.maxAmount, c.limit, c.minimum,
		); err != nil {
			return errors.Wrapf(err, "insert coupon %s", c.code)
		}
	}
	return nil
}
