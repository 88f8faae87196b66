package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

// EquityStore implements domain.EquityStore using PostgreSQL. One row per
// session date; recording the same session twice keeps the latest figures.
type EquityStore struct {
	db DB
}

// NewEquityStore creates an EquityStore.
func NewEquityStore(db DB) *EquityStore {
	return &EquityStore{db: db}
}

// Record upserts the snapshot for snap.SessionDate.
func (s *EquityStore) Record(ctx context.Context, snap domain.EquitySnapshot) error {
	const query = `
		INSERT INTO equity_snapshots (session_date, current, last, positions, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_date) DO UPDATE SET
			current = EXCLUDED.current,
			last = EXCLUDED.last,
			positions = EXCLUDED.positions,
			recorded_at = EXCLUDED.recorded_at`

	_, err := s.db.Exec(ctx, query,
		snap.SessionDate.UTC().Format("2006-01-02"),
		snap.Current.String(),
		snap.Last.String(),
		snap.Positions,
		snap.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record equity %s: %w", snap.SessionDate.Format("2006-01-02"), err)
	}
	return nil
}

// ListRecent returns up to limit snapshots, newest session first.
func (s *EquityStore) ListRecent(ctx context.Context, limit int) ([]domain.EquitySnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	const query = `
		SELECT session_date, current::text, last::text, positions, recorded_at
		FROM equity_snapshots
		ORDER BY session_date DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list equity: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EquitySnapshot, error) {
		var (
			snap          domain.EquitySnapshot
			current, last string
		)
		if err := row.Scan(&snap.SessionDate, &current, &last, &snap.Positions, &snap.RecordedAt); err != nil {
			return snap, err
		}
		var err error
		if snap.Current, err = decimal.NewFromString(current); err != nil {
			return snap, err
		}
		if snap.Last, err = decimal.NewFromString(last); err != nil {
			return snap, err
		}
		return snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan equity: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.EquityStore = (*EquityStore)(nil)
