package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// Registry enforces ownership and lifecycle rules over a Store. A caller may
// only read or mutate sessions they created; violations surface as
// ErrNotOwner rather than ErrNotFound — the registry does not hide session
// existence from authenticated callers.
type Registry struct {
	store             Store
	inactivityTimeout time.Duration

	mu       sync.Mutex
	onExpire func(*Session)
}

func NewRegistry(store Store, inactivityTimeout time.Duration) *Registry {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Registry{store: store, inactivityTimeout: inactivityTimeout}
}

// SetExpireHook registers a callback invoked for sessions the janitor expires.
func (r *Registry) SetExpireHook(hook func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

// Create records a new session. The session arrives fully built by the
// issuer; the registry only stamps timestamps and the initial status.
func (r *Registry) Create(ctx context.Context, sess *Session) error {
	now := time.Now().UTC()
	sess.Status = StatusPending
	sess.CreatedAt = now
	sess.LastActivityAt = now
	return r.store.Insert(ctx, sess)
}

// Get returns a session readable by callerID.
func (r *Registry) Get(ctx context.Context, callerID, sessionID string) (*Session, error) {
	sess, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != callerID {
		return nil, ErrNotOwner
	}
	return sess, nil
}

// UpdateStatus applies a lifecycle transition on behalf of callerID.
// Re-applying the current status is a no-op; disallowed transitions fail
// with ErrInvalidTransition.
func (r *Registry) UpdateStatus(ctx context.Context, callerID, sessionID string, to Status) (*Session, error) {
	sess, err := r.Get(ctx, callerID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == to {
		return sess, nil
	}
	if !sess.Status.CanTransition(to) {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	var endedAt *time.Time
	if to == StatusEnded || to == StatusError {
		endedAt = &now
	}
	if err := r.store.SetStatus(ctx, sessionID, to, now, endedAt); err != nil {
		return nil, err
	}
	sess.Status = to
	sess.LastActivityAt = now
	sess.EndedAt = endedAt
	return sess, nil
}

// End moves a session to ended. Ending an already-ended session is a no-op.
func (r *Registry) End(ctx context.Context, callerID, sessionID string) (*Session, error) {
	return r.UpdateStatus(ctx, callerID, sessionID, StatusEnded)
}

// Touch refreshes the session's activity timestamp. Used by status polls and
// the websocket feed so live calls are not expired by the janitor.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	return r.store.Touch(ctx, sessionID, time.Now().UTC())
}

// StartJanitor expires pending/active sessions with no recent activity.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireInactive(ctx)
			}
		}
	}()
}

func (r *Registry) expireInactive(ctx context.Context) {
	now := time.Now().UTC()
	stale, err := r.store.ListUnfinished(ctx)
	if err != nil {
		log.Printf("[session] janitor list failed: %v", err)
		return
	}

	r.mu.Lock()
	hook := r.onExpire
	r.mu.Unlock()

	for _, sess := range stale {
		if now.Sub(sess.LastActivityAt) < r.inactivityTimeout {
			continue
		}
		endedAt := now
		if err := r.store.SetStatus(ctx, sess.ID, StatusError, now, &endedAt); err != nil {
			log.Printf("[session] janitor expire %s failed: %v", sess.ID, err)
			continue
		}
		sess.Status = StatusError
		sess.LastActivityAt = now
		sess.EndedAt = &endedAt
		log.Printf("[session] expired inactive session %s", sess.ID)
		if hook != nil {
			hook(sess)
		}
	}
}
