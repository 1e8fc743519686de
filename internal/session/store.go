package session

import (
	"context"
	"strings"
	"time"
)

// Store persists session records. The registry layers ownership and
// transition rules on top; stores only read and write.
type Store interface {
	Insert(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	SetStatus(ctx context.Context, id string, status Status, at time.Time, endedAt *time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	ListUnfinished(ctx context.Context) ([]*Session, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
