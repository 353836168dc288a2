package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRecorder writes entries to the workflow_transition table.
type PGRecorder struct {
	db Querier
}

func NewPGRecorder(db Querier) *PGRecorder {
	return &PGRecorder{db: db}
}

func (r *PGRecorder) Record(ctx context.Context, e *Entry) error {
	prepare(e)
	const query = `
		INSERT INTO workflow_transition (
			id, conversation_id, kind, action, from_step, to_step, outcome, error, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.db.Exec(ctx, query,
		e.ID, e.ConversationID, e.Kind, e.Action, e.FromStep, e.ToStep, e.Outcome, e.Error, e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("journal: insert transition: %w", err)
	}
	return nil
}

func (r *PGRecorder) List(ctx context.Context, conversationID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, conversation_id, kind, action, from_step, to_step, outcome, error, recorded_at
		FROM workflow_transition`
	args := []any{}
	if conversationID != "" {
		query += ` WHERE conversation_id = $1`
		args = append(args, conversationID)
	}
	query += fmt.Sprintf(` ORDER BY recorded_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list transitions: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Kind, &e.Action,
			&e.FromStep, &e.ToStep, &e.Outcome, &e.Error, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("journal: scan transition: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
