package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/teslashibe/go-proctor/pkg/activity"
)

// PostgresStore records sessions in PostgreSQL.
type PostgresStore struct {
	conn *pgx.Conn
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}
	return &PostgresStore{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS proctor_sessions (
			id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			violation_count INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS proctor_activities (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES proctor_sessions(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL,
			UNIQUE (session_id, seq)
		);
		CREATE INDEX IF NOT EXISTS proctor_activities_session_idx ON proctor_activities (session_id, seq);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Begin inserts the session row.
func (p *PostgresStore) Begin(ctx context.Context, s Session) error {
	_, err := p.conn.Exec(ctx, `
		INSERT INTO proctor_sessions (id, started_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.StartedAt)
	return err
}

// Append inserts one activity.
func (p *PostgresStore) Append(ctx context.Context, sessionID string, seq int, a activity.Activity) error {
	_, err := p.conn.Exec(ctx, `
		INSERT INTO proctor_activities (id, session_id, seq, type, severity, source, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, sessionID, seq, string(a.Type), string(a.Severity), a.Source, a.Description, a.Timestamp)
	return err
}

// End stamps the end time and final count.
func (p *PostgresStore) End(ctx context.Context, s Session) error {
	_, err := p.conn.Exec(ctx, `
		UPDATE proctor_sessions SET ended_at = $2, violation_count = $3 WHERE id = $1
	`, s.ID, s.EndedAt, s.Count)
	return err
}

// Activities returns a session's activities in append order.
func (p *PostgresStore) Activities(ctx context.Context, sessionID string) ([]activity.Activity, error) {
	rows, err := p.conn.Query(ctx, `
		SELECT id, type, severity, source, description, occurred_at
		FROM proctor_activities WHERE session_id = $1 ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activity.Activity
	for rows.Next() {
		var (
			a        activity.Activity
			typ, sev string
		)
		if err := rows.Scan(&a.ID, &typ, &sev, &a.Source, &a.Description, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Type, a.Severity = activity.Type(typ), activity.Severity(sev)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close terminates the connection.
func (p *PostgresStore) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}
