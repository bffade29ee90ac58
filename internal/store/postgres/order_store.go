package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvys/predictipulse/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, idempotency_key, venue_order_id, outcome_id, side,
			price, size, filled_size, state, reason, retry_count,
			opportunity_id, created_at, submitted_at, acked_at, closed_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.IdempotencyKey, o.VenueOrderID, o.OutcomeID, string(o.Side),
		o.Price, o.Size, o.FilledSize, string(o.State), o.Reason, o.RetryCount,
		o.OpportunityID, o.CreatedAt, o.SubmittedAt, o.AckedAt, o.ClosedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Update rewrites the mutable order columns.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE orders SET
			venue_order_id = $2, filled_size = $3, state = $4, reason = $5,
			retry_count = $6, submitted_at = $7, acked_at = $8, closed_at = $9,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		o.ID, o.VenueOrderID, o.FilledSize, string(o.State), o.Reason,
		o.RetryCount, o.SubmittedAt, o.AckedAt, o.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, idempotency_key, venue_order_id, outcome_id, side,
	price, size, filled_size, state, reason, retry_count,
	opportunity_id, created_at, submitted_at, acked_at, closed_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, state string

	err := scanner.Scan(
		&o.ID, &o.IdempotencyKey, &o.VenueOrderID, &o.OutcomeID, &side,
		&o.Price, &o.Size, &o.FilledSize, &state, &o.Reason, &o.RetryCount,
		&o.OpportunityID, &o.CreatedAt, &o.SubmittedAt, &o.AckedAt, &o.ClosedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.State = domain.OrderState(state)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListNonTerminal returns every order still owned by the lifecycle manager,
// oldest first, for restart reconciliation.
func (s *OrderStore) ListNonTerminal(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE state NOT IN ('filled', 'cancelled', 'rejected', 'failed')
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list non-terminal orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan non-terminal orders: %w", err)
	}
	return orders, nil
}

// ListClosedBefore returns terminal orders closed before the cutoff, for
// archival.
func (s *OrderStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE closed_at IS NOT NULL AND closed_at < $1
		 ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed orders: %w", err)
	}
	return orders, nil
}

// ListByOutcome returns orders placed against one outcome, oldest first,
// windowed by opts.
func (s *OrderStore) ListByOutcome(ctx context.Context, outcomeID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE outcome_id = $1`
	args := []any{outcomeID}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by outcome: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by outcome: %w", err)
	}
	return orders, nil
}
