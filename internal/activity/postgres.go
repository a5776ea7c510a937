package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog persists onboarding history in PostgreSQL.
type PostgresLog struct {
	db *pgxpool.Pool
}

// NewPostgresLog constructs a Postgres-backed history.
func NewPostgresLog(db *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{db: db}
}

// EnsureSchema creates the user_activity table when it does not exist.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS user_activity (
        id UUID PRIMARY KEY,
        user_id TEXT NOT NULL,
        actor TEXT NOT NULL,
        action TEXT NOT NULL,
        from_status TEXT NOT NULL DEFAULT '',
        to_status TEXT NOT NULL DEFAULT '',
        step TEXT NOT NULL DEFAULT '',
        occurred_at TIMESTAMPTZ NOT NULL
    )`)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS user_activity_user_idx ON user_activity (user_id, occurred_at)`)
	return err
}

// Append inserts one record.
func (l *PostgresLog) Append(ctx context.Context, record Record) error {
	id := uuid.New()
	if record.ID != "" {
		parsed, err := uuid.Parse(record.ID)
		if err != nil {
			return err
		}
		id = parsed
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}
	_, err := l.db.Exec(ctx, `INSERT INTO user_activity (id, user_id, actor, action, from_status, to_status, step, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, record.UserID, record.Actor, record.Action, record.FromStatus, record.ToStatus, record.Step, record.OccurredAt.UTC())
	return err
}

// ForUser returns the history of userID, oldest first.
func (l *PostgresLog) ForUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := l.db.Query(ctx, `SELECT id::text, user_id, actor, action, from_status, to_status, step, occurred_at
        FROM user_activity WHERE user_id = $1 ORDER BY occurred_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.Actor, &r.Action, &r.FromStatus, &r.ToStatus, &r.Step, &r.OccurredAt); err != nil {
			return nil, err
		}
		r.OccurredAt = r.OccurredAt.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
