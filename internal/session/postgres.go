package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists session records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS voice_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			room_name TEXT NOT NULL,
			identity TEXT NOT NULL,
			token TEXT NOT NULL,
			server_url TEXT NOT NULL,
			status TEXT NOT NULL,
			config JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ended_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_voice_sessions_user ON voice_sessions (user_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_voice_sessions_status ON voice_sessions (status);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, sess *Session) error {
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("encode session config: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO voice_sessions
		 (id, user_id, conversation_id, room_name, identity, token, server_url, status, config, created_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sess.ID, sess.UserID, sess.ConversationID, sess.RoomName, sess.Identity,
		sess.Token, sess.ServerURL, string(sess.Status), cfg, sess.CreatedAt, sess.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, conversation_id, room_name, identity, token, server_url, status, config, created_at, last_activity_at, ended_at
		 FROM voice_sessions WHERE id=$1`, id)

	var (
		sess    Session
		status  string
		rawCfg  []byte
		endedAt *time.Time
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.ConversationID, &sess.RoomName, &sess.Identity,
		&sess.Token, &sess.ServerURL, &status, &rawCfg, &sess.CreatedAt, &sess.LastActivityAt, &endedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = Status(status)
	sess.EndedAt = endedAt
	if len(rawCfg) > 0 {
		if err := json.Unmarshal(rawCfg, &sess.Config); err != nil {
			return nil, fmt.Errorf("decode session config: %w", err)
		}
	}
	return &sess, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status, at time.Time, endedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE voice_sessions SET status=$2, last_activity_at=$3, ended_at=COALESCE($4, ended_at) WHERE id=$1`,
		id, string(status), at, endedAt)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE voice_sessions SET last_activity_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListUnfinished(ctx context.Context) ([]*Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, conversation_id, room_name, identity, token, server_url, status, config, created_at, last_activity_at, ended_at
		 FROM voice_sessions WHERE status IN ('pending', 'active')`)
	if err != nil {
		return nil, fmt.Errorf("query unfinished sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var (
			sess   Session
			status string
			rawCfg []byte
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.ConversationID, &sess.RoomName, &sess.Identity,
			&sess.Token, &sess.ServerURL, &status, &rawCfg, &sess.CreatedAt, &sess.LastActivityAt, &sess.EndedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.Status = Status(status)
		if len(rawCfg) > 0 {
			if err := json.Unmarshal(rawCfg, &sess.Config); err != nil {
				return nil, fmt.Errorf("decode session config: %w", err)
			}
		}
		out = append(out, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
