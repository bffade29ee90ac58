package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvys/predictipulse/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. One row per
// outcome; the ledger owns the arithmetic and this store only persists the
// result.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert writes the full position row, inserting or replacing by outcome.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			outcome_id, net_size, avg_entry_price, realized_pnl,
			unrealized_pnl, mark_price, status, opened_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (outcome_id) DO UPDATE SET
			net_size = EXCLUDED.net_size,
			avg_entry_price = EXCLUDED.avg_entry_price,
			realized_pnl = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			mark_price = EXCLUDED.mark_price,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.OutcomeID, p.NetSize, p.AvgEntryPrice, p.RealizedPnL,
		p.UnrealizedPnL, p.MarkPrice, string(p.Status), p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.OutcomeID, err)
	}
	return nil
}

const positionSelectCols = `outcome_id, net_size, avg_entry_price, realized_pnl,
	unrealized_pnl, mark_price, status, opened_at, updated_at`

func scanPositionFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Position, error) {
	var p domain.Position
	var status string

	err := scanner.Scan(
		&p.OutcomeID, &p.NetSize, &p.AvgEntryPrice, &p.RealizedPnL,
		&p.UnrealizedPnL, &p.MarkPrice, &status, &p.OpenedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}

	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionFromRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Get retrieves one position by outcome.
func (s *PositionStore) Get(ctx context.Context, outcomeID string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE outcome_id = $1`, outcomeID)

	p, err := scanPositionFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", outcomeID, err)
	}
	return p, nil
}

// List returns every position, open and closed.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions ORDER BY outcome_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// ListOpen returns positions with a live exposure.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = $1 ORDER BY outcome_id`, string(domain.PositionStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}
