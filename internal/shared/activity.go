package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tragel/adminconsole/internal/platform/db"
	"github.com/tragel/adminconsole/internal/subscription"
)

const activitySchema = `CREATE TABLE IF NOT EXISTS key_issuance_log (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	company_id  TEXT NOT NULL,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ActivityLog writes subscription key requests into key_issuance_log.
type ActivityLog struct {
	pool *pgxpool.Pool
}

// NewActivityLog returns an ActivityLog backed by pool.
func NewActivityLog(pool *pgxpool.Pool) *ActivityLog {
	return &ActivityLog{pool: pool}
}

// EnsureSchema creates the log table when missing.
func (l *ActivityLog) EnsureSchema(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return errors.New("activity log not initialised")
	}
	if _, err := l.pool.Exec(ctx, activitySchema); err != nil {
		return fmt.Errorf("shared: activity schema: %w", err)
	}
	return nil
}

// RecordIssuance implements subscription.IssuanceRecorder.
func (l *ActivityLog) RecordIssuance(ctx context.Context, rec subscription.Issuance) error {
	if l == nil || l.pool == nil {
		return errors.New("activity log not initialised")
	}
	if rec.Outcome == "" {
		return errors.New("activity log requires an outcome")
	}
	return db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO key_issuance_log (session_id, company_id, start_date, end_date, outcome, detail, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
			rec.SessionID, rec.CompanyID, rec.Start, rec.End, rec.Outcome, rec.Detail, nullableTime(rec),
		)
		return err
	})
}

func nullableTime(rec subscription.Issuance) any {
	if rec.At.IsZero() {
		return nil
	}
	return rec.At
}
