package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/config"
	"triggerflow/internal/domain/models"
	"triggerflow/internal/pubsub"
)

// Adapter implements the OrderRepository interface for PostgreSQL.
// Subscription fan-out is in-process: every successful write re-reads the
// wallet's order set and notifies local listeners, standing in for the
// document store's change feed.
type Adapter struct {
	db   *sql.DB
	subs *pubsub.KeyedTopic[[]models.Order]
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	wallet            TEXT NOT NULL,
	input_token       TEXT NOT NULL,
	output_token      TEXT NOT NULL,
	input_amount      NUMERIC NOT NULL,
	kind              TEXT NOT NULL,
	trigger_price     NUMERIC NOT NULL,
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	status_changed_at TIMESTAMPTZ NOT NULL,
	executed_at       TIMESTAMPTZ,
	tx_signature      TEXT NOT NULL DEFAULT '',
	failure_reason    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS orders_wallet_idx ON orders (wallet, created_at);
`

// New creates a new PostgreSQL adapter and ensures the schema exists
func New(cfg config.DatabaseConfig) (ports.OrderRepository, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &Adapter{
		db:   db,
		subs: pubsub.NewKeyedTopic[[]models.Order](),
	}, nil
}

const orderColumns = `id, wallet, input_token, output_token, input_amount, kind,
	trigger_price, status, created_at, status_changed_at, executed_at,
	tx_signature, failure_reason`

// Create persists a draft with status PENDING and an assigned id
func (a *Adapter) Create(ctx context.Context, draft models.OrderDraft) (models.Order, error) {
	now := time.Now()
	order := models.Order{
		ID:              uuid.NewString(),
		Wallet:          draft.Wallet,
		InputToken:      draft.InputToken,
		OutputToken:     draft.OutputToken,
		InputAmount:     draft.InputAmount,
		Kind:            draft.Kind,
		TriggerPrice:    draft.TriggerPrice,
		Status:          models.StatusPending,
		CreatedAt:       now,
		StatusChangedAt: now,
	}

	query := `INSERT INTO orders (id, wallet, input_token, output_token, input_amount,
			  kind, trigger_price, status, created_at, status_changed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := a.db.ExecContext(ctx, query, order.ID, order.Wallet, order.InputToken,
		order.OutputToken, order.InputAmount, order.Kind, order.TriggerPrice,
		order.Status, order.CreatedAt, order.StatusChangedAt)
	if err != nil {
		return models.Order{}, err
	}

	a.notify(ctx, order.Wallet)
	return order, nil
}

// Get returns the order for the id, or ErrOrderNotFound
func (a *Adapter) Get(ctx context.Context, id string) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(a.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Order{}, ports.ErrOrderNotFound
		}
		return models.Order{}, err
	}
	return order, nil
}

// ListByWallet returns all orders owned by the wallet, oldest first
func (a *Adapter) ListByWallet(ctx context.Context, wallet string) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE wallet = $1 ORDER BY created_at`

	rows, err := a.db.QueryContext(ctx, query, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// UpdateStatus unconditionally writes the status and associated fields
func (a *Adapter) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, fields models.StatusFields) error {
	query := `UPDATE orders
			  SET status = $2, status_changed_at = $3,
				  executed_at = COALESCE($4, executed_at),
				  tx_signature = CASE WHEN $5 = '' THEN tx_signature ELSE $5 END,
				  failure_reason = $6
			  WHERE id = $1
			  RETURNING wallet`

	var wallet string
	err := a.db.QueryRowContext(ctx, query, id, status, time.Now(),
		fields.ExecutedAt, fields.TxSignature, fields.FailureReason).Scan(&wallet)
	if err != nil {
		if err == sql.ErrNoRows {
			return ports.ErrOrderNotFound
		}
		return err
	}

	a.notify(ctx, wallet)
	return nil
}

// TransitionStatus writes the status only if the current status equals
// from. The WHERE clause makes the claim atomic at the database, which is
// the mutual exclusion the execution path relies on.
func (a *Adapter) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, fields models.StatusFields) (bool, error) {
	query := `UPDATE orders
			  SET status = $3, status_changed_at = $4,
				  executed_at = COALESCE($5, executed_at),
				  tx_signature = CASE WHEN $6 = '' THEN tx_signature ELSE $6 END,
				  failure_reason = $7
			  WHERE id = $1 AND status = $2
			  RETURNING wallet`

	var wallet string
	err := a.db.QueryRowContext(ctx, query, id, from, to, time.Now(),
		fields.ExecutedAt, fields.TxSignature, fields.FailureReason).Scan(&wallet)
	if err != nil {
		if err == sql.ErrNoRows {
			// Either the order is gone or another writer got there first.
			if _, getErr := a.Get(ctx, id); getErr != nil {
				return false, getErr
			}
			return false, nil
		}
		return false, err
	}

	a.notify(ctx, wallet)
	return true, nil
}

// Subscribe registers a listener for the wallet's order set. The current
// set is delivered immediately, then again after every local mutation.
func (a *Adapter) Subscribe(wallet string, fn func([]models.Order)) func() {
	unsub := a.subs.Subscribe(wallet, fn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if orders, err := a.ListByWallet(ctx, wallet); err == nil {
		fn(orders)
	}

	return unsub
}

// Close closes the storage connection
func (a *Adapter) Close() error {
	return a.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (models.Order, error) {
	var order models.Order
	var executedAt sql.NullTime
	err := row.Scan(&order.ID, &order.Wallet, &order.InputToken, &order.OutputToken,
		&order.InputAmount, &order.Kind, &order.TriggerPrice, &order.Status,
		&order.CreatedAt, &order.StatusChangedAt, &executedAt,
		&order.TxSignature, &order.FailureReason)
	if err != nil {
		return models.Order{}, err
	}
	if executedAt.Valid {
		order.ExecutedAt = &executedAt.Time
	}
	return order, nil
}

func (a *Adapter) notify(ctx context.Context, wallet string) {
	orders, err := a.ListByWallet(ctx, wallet)
	if err != nil {
		return
	}
	a.subs.Publish(wallet, orders)
}
