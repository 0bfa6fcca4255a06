package records

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/orderdesk/internal/api"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const orderColumns = `id, name, date, departure, destination, outbound_time, return_time,
		duration, capacity, subtotal, discount, total, paid, payment_date, balance, created_at`

// SQL statements for cache operations.
const (
	sqlLoadOrders = `SELECT ` + orderColumns + ` FROM orders ORDER BY position`

	sqlDeleteAll = `DELETE FROM orders`

	sqlInsertOrder = `INSERT INTO orders
		(position, ` + orderColumns + `, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpsertOrder = `INSERT INTO orders
		(position, ` + orderColumns + `, cached_at)
		VALUES (COALESCE((SELECT MIN(position) FROM orders), 0) - 1,
		 ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 name = excluded.name,
		 date = excluded.date,
		 departure = excluded.departure,
		 destination = excluded.destination,
		 outbound_time = excluded.outbound_time,
		 return_time = excluded.return_time,
		 duration = excluded.duration,
		 capacity = excluded.capacity,
		 subtotal = excluded.subtotal,
		 discount = excluded.discount,
		 total = excluded.total,
		 paid = excluded.paid,
		 payment_date = excluded.payment_date,
		 balance = excluded.balance,
		 created_at = excluded.created_at,
		 cached_at = excluded.cached_at`

	sqlDeleteOrder = `DELETE FROM orders WHERE id = ?`
)

// SQLiteCache persists the last confirmed order list so it can be shown
// before the first fetch completes.
type SQLiteCache struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenCache opens (creating if needed) the cache database at dbPath and
// applies pending migrations. Use ":memory:" in tests.
func OpenCache(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("records: opening cache %s: %w", dbPath, err)
	}

	// One connection: keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("order cache opened", slog.String("db_path", dbPath))

	return &SQLiteCache{db: db, logger: logger, nowFunc: time.Now}, nil
}

// runMigrations applies the embedded schema migrations with the goose
// Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("records: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("records: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("records: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Load returns the cached orders in list order.
func (c *SQLiteCache) Load(ctx context.Context) ([]api.Order, error) {
	rows, err := c.db.QueryContext(ctx, sqlLoadOrders)
	if err != nil {
		return nil, fmt.Errorf("records: loading cache: %w", err)
	}
	defer rows.Close()

	var orders []api.Order

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}

		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: iterating cache rows: %w", err)
	}

	return orders, nil
}

// Replace swaps the whole cached list in one transaction.
func (c *SQLiteCache) Replace(ctx context.Context, orders []api.Order) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("records: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, sqlDeleteAll); err != nil {
		return fmt.Errorf("records: clearing cache: %w", err)
	}

	now := c.nowFunc().UnixNano()

	for i := range orders {
		args := append([]any{i}, orderArgs(&orders[i])...)
		args = append(args, now)

		if _, err := tx.ExecContext(ctx, sqlInsertOrder, args...); err != nil {
			return fmt.Errorf("records: caching order %d: %w", orders[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("records: committing cache: %w", err)
	}

	c.logger.Debug("order cache replaced", slog.Int("count", len(orders)))

	return nil
}

// Upsert stores one order. A new order goes to the top of the list.
func (c *SQLiteCache) Upsert(ctx context.Context, o api.Order) error {
	args := append(orderArgs(&o), c.nowFunc().UnixNano())

	if _, err := c.db.ExecContext(ctx, sqlUpsertOrder, args...); err != nil {
		return fmt.Errorf("records: caching order %d: %w", o.ID, err)
	}

	return nil
}

// Delete removes one order. Deleting an unknown id is not an error.
func (c *SQLiteCache) Delete(ctx context.Context, id int64) error {
	if _, err := c.db.ExecContext(ctx, sqlDeleteOrder, id); err != nil {
		return fmt.Errorf("records: uncaching order %d: %w", id, err)
	}

	return nil
}

// orderArgs returns the order's values in orderColumns order.
func orderArgs(o *api.Order) []any {
	var createdAt any
	if !o.CreatedAt.IsZero() {
		createdAt = o.CreatedAt.UnixNano()
	}

	return []any{
		o.ID,
		nullable(o.Name), nullable(o.Date), nullable(o.Departure), nullable(o.Destination),
		nullable(o.OutboundTime), nullable(o.ReturnTime), nullable(o.Duration), nullable(o.Capacity),
		nullable(o.Subtotal), nullable(o.Discount), nullable(o.Total), nullable(o.Paid),
		nullable(o.PaymentDate), nullable(o.Balance),
		createdAt,
	}
}

func scanOrder(rows *sql.Rows) (api.Order, error) {
	var (
		o                                        api.Order
		name, date, departure, destination       sql.NullString
		outbound, ret, duration, capacity, payAt sql.NullString
		subtotal, discount, total, paid, balance sql.NullFloat64
		createdAt                                sql.NullInt64
	)

	err := rows.Scan(&o.ID, &name, &date, &departure, &destination, &outbound, &ret,
		&duration, &capacity, &subtotal, &discount, &total, &paid, &payAt, &balance, &createdAt)
	if err != nil {
		return api.Order{}, fmt.Errorf("records: scanning cached order: %w", err)
	}

	o.Name = stringPtr(name)
	o.Date = stringPtr(date)
	o.Departure = stringPtr(departure)
	o.Destination = stringPtr(destination)
	o.OutboundTime = stringPtr(outbound)
	o.ReturnTime = stringPtr(ret)
	o.Duration = stringPtr(duration)
	o.Capacity = stringPtr(capacity)
	o.PaymentDate = stringPtr(payAt)
	o.Subtotal = floatPtr(subtotal)
	o.Discount = floatPtr(discount)
	o.Total = floatPtr(total)
	o.Paid = floatPtr(paid)
	o.Balance = floatPtr(balance)

	if createdAt.Valid {
		o.CreatedAt = api.Timestamp{Time: time.Unix(0, createdAt.Int64).UTC()}
	}

	return o, nil
}

// nullable turns a nil pointer into a SQL NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}

	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}

	return &ns.String
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}

	return &nf.Float64
}
