// Package services – SessionRegistry
//
// SessionRegistry maps a user to the remote conversation thread. It never
// returns an empty handle: if the thread can be neither resolved nor
// created the caller gets ErrSessionUnavailable. Concurrent first contact
// is settled by the unique index on sessions.user_id plus a bounded
// get-or-create retry.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/agent"
	"github.com/tbourn/go-inventory-bot/internal/repo"
)

// SessionHandle binds a user to a live remote thread.
type SessionHandle struct {
	UserID   string
	ThreadID string
	Created  bool // true when the thread was created by this call
}

// SessionRegistry resolves or creates per-user sessions.
type SessionRegistry struct {
	DB    *gorm.DB
	Agent agent.Client
	Retry RetryPolicy
}

const sessionCreateAttempts = 3

// GetOrCreate returns the user's session, creating the remote thread and the
// row on first contact. No row is written when thread creation fails.
func (r *SessionRegistry) GetOrCreate(ctx context.Context, userID string) (*SessionHandle, error) {
	tr := otel.Tracer("services/SessionRegistry")
	ctx, span := tr.Start(ctx, "GetOrCreate",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	for attempt := 0; attempt < sessionCreateAttempts; attempt++ {
		h, err := r.getOrCreateOnce(ctx, userID)
		if errors.Is(err, repo.ErrDuplicate) {
			// Lost the race to a concurrent first contact; read the winner.
			continue
		}
		if err != nil {
			span.RecordError(err)
		}
		return h, err
	}
	return nil, fmt.Errorf("%w: session for user kept conflicting", ErrSessionUnavailable)
}

func (r *SessionRegistry) getOrCreateOnce(ctx context.Context, userID string) (*SessionHandle, error) {
	sess, err := repo.GetSessionByUser(ctx, r.DB, userID)
	switch {
	case err == nil:
		tid, err := retryRemote(ctx, r.Retry, func() (string, error) {
			return r.Agent.RetrieveThread(ctx, sess.ThreadID)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: resolve thread: %w", ErrSessionUnavailable, err)
		}
		return &SessionHandle{UserID: userID, ThreadID: tid}, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}

	tid, err := retryRemote(ctx, r.Retry, func() (string, error) {
		return r.Agent.CreateThread(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create thread: %w", ErrSessionUnavailable, err)
	}
	if _, err := repo.CreateSession(ctx, r.DB, userID, tid); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	return &SessionHandle{UserID: userID, ThreadID: tid, Created: true}, nil
}
