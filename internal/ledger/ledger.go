package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/makerbot/bitsobot/internal/domain"
)

var log = logrus.WithField("component", "ledger")

// ErrDuplicateOrder is returned by Insert when the exchange order id is
// already present. The stored record is left untouched.
var ErrDuplicateOrder = errors.New("ledger: duplicate order id")

// Store persists every order the bot ever placed. Rows are never deleted.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("ledger: db path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single connection keeps writes serialized
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS orders (
  oid TEXT PRIMARY KEY,
  book TEXT NOT NULL,
  side TEXT NOT NULL,
  price TEXT NOT NULL,
  amount TEXT NOT NULL,
  target_price TEXT,
  status TEXT NOT NULL DEFAULT 'active',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_active_side ON orders(is_active, side);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Insert persists a freshly placed order with status=active. A duplicate oid
// yields ErrDuplicateOrder and never overwrites the stored record.
func (s *Store) Insert(ctx context.Context, o domain.Order) error {
	if o.OID == "" {
		return errors.New("ledger: oid is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var target sql.NullString
	if o.TargetPrice != nil {
		target = sql.NullString{String: o.TargetPrice.String(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO orders (oid,book,side,price,amount,target_price,status,is_active,created_at,updated_at)
VALUES (?,?,?,?,?,?,'active',1,?,?)
`, o.OID, o.Book, string(o.Side), o.Price.String(), o.Amount.String(), target, now, now)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if n == 0 {
		return ErrDuplicateOrder
	}
	return nil
}

// UpdateStatus moves an active order to a new status and recomputes
// is_active. Terminal rows are immutable; an unknown oid is a logged no-op.
func (s *Store) UpdateStatus(ctx context.Context, oid string, status domain.OrderStatus) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	active := 0
	if status == domain.OrderStatusActive {
		active = 1
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE orders SET status=?, is_active=?, updated_at=?
WHERE oid=? AND status='active'
`, string(status), active, now, oid)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		var existing string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE oid=?`, oid).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			log.Warnf("update status for unknown order %s, skipping", oid)
			return nil
		}
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		log.Debugf("order %s already %s, ignoring transition to %s", oid, existing, status)
	}
	return nil
}

// ListActive returns a snapshot of the locally active orders.
func (s *Store) ListActive(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT oid,book,side,price,amount,target_price,status,is_active,created_at,updated_at
FROM orders WHERE is_active=1 ORDER BY created_at
`)
	if err != nil {
		return nil, fmt.Errorf("list active orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountActive counts locally active orders of one side.
func (s *Store) CountActive(ctx context.Context, side domain.Side) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM orders WHERE is_active=1 AND side=?
`, string(side)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active orders: %w", err)
	}
	return n, nil
}

// Get fetches one order by exchange id. Returns nil when absent.
func (s *Store) Get(ctx context.Context, oid string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT oid,book,side,price,amount,target_price,status,is_active,created_at,updated_at
FROM orders WHERE oid=?
`, oid)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (domain.Order, error) {
	var (
		o         domain.Order
		side      string
		price     string
		amount    string
		target    sql.NullString
		status    string
		isActive  int
		createdAt string
		updatedAt string
	)
	if err := r.Scan(&o.OID, &o.Book, &side, &price, &amount, &target, &status, &isActive, &createdAt, &updatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	o.IsActive = isActive == 1

	var err error
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Order{}, fmt.Errorf("scan order %s price: %w", o.OID, err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Order{}, fmt.Errorf("scan order %s amount: %w", o.OID, err)
	}
	if target.Valid {
		tp, err := decimal.NewFromString(target.String)
		if err != nil {
			return domain.Order{}, fmt.Errorf("scan order %s target price: %w", o.OID, err)
		}
		o.TargetPrice = &tp
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Order{}, fmt.Errorf("scan order %s created_at: %w", o.OID, err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Order{}, fmt.Errorf("scan order %s updated_at: %w", o.OID, err)
	}
	return o, nil
}
