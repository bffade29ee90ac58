package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvys/predictipulse/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL. The venue fill id
// is the primary key, so a replayed fill surfaces as ErrAlreadyExists and the
// ledger skips it.
type FillStore struct {
	pool *pgxpool.Pool
}

var _ domain.FillStore = (*FillStore)(nil)

// NewFillStore creates a FillStore backed by the given pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Insert records one fill. It returns domain.ErrAlreadyExists when the venue
// fill id has been recorded before.
func (s *FillStore) Insert(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO fills (id, order_id, outcome_id, side, price, size, seq, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		f.ID, f.OrderID, f.OutcomeID, string(f.Side), f.Price, f.Size, f.Seq, f.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

const fillSelectCols = `id, order_id, outcome_id, side, price, size, seq, ts`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		if err := rows.Scan(&f.ID, &f.OrderID, &f.OutcomeID, &side,
			&f.Price, &f.Size, &f.Seq, &f.Timestamp); err != nil {
			return nil, err
		}
		f.Side = domain.OrderSide(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListByOrder returns an order's fills in venue sequence order.
func (s *FillStore) ListByOrder(ctx context.Context, orderID string) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills
		 WHERE order_id = $1 ORDER BY seq ASC, ts ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by order: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills by order: %w", err)
	}
	return fills, nil
}

// ListBefore returns fills recorded before the cutoff, for archival.
func (s *FillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills
		 WHERE ts < $1 ORDER BY ts ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills before: %w", err)
	}
	return fills, nil
}

// ListRecent returns the most recently recorded fills, newest first, used to
// seed the ledger's replay guard on restart.
func (s *FillStore) ListRecent(ctx context.Context, limit int) ([]domain.Fill, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills
		 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent fills: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent fills: %w", err)
	}
	return fills, nil
}
