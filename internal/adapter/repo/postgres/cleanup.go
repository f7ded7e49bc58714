package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the part of pgx.Tx the cleanup job needs.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens transactions.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

type poolBeginner struct{ pool *pgxpool.Pool }

func (p poolBeginner) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// PoolBeginner adapts a pgxpool.Pool to Beginner.
func PoolBeginner(pool *pgxpool.Pool) Beginner { return poolBeginner{pool: pool} }

// CleanupService purges cancelled sessions and bookings past the retention period.
// Completed records are history and are kept.
type CleanupService struct {
	DB            Beginner
	RetentionDays int
	Now           func() time.Time
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(db Beginner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{DB: db, RetentionDays: retentionDays, Now: time.Now}
}

// CleanupOldData removes cancelled rows last touched before the cutoff.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().UTC().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sessions, err := tx.Exec(ctx, `DELETE FROM practice_sessions WHERE status = 'cancelled' AND updated_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup.practice_sessions: %w", err)
	}
	bookings, err := tx.Exec(ctx, `DELETE FROM booked_interviews WHERE status = 'cancelled' AND updated_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup.booked_interviews: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=cleanup.commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_practice_sessions", sessions.RowsAffected()),
		slog.Int64("deleted_bookings", bookings.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs the cleanup now and then on every tick until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
