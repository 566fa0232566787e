package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/domain"
	"github.com/tbourn/go-inventory-bot/internal/repo"
)

// DefaultReplyTTL bounds how long a reply is replayed for a retried message.
const DefaultReplyTTL = 24 * time.Hour

// DefaultPendingTTL bounds how long a claim blocks other deliveries of the
// same message when its owner never completes or releases it.
const DefaultPendingTTL = DefaultMaxWait + 30*time.Second

// ReplyStore remembers the reply produced for an inbound message key so a
// redelivered message is answered without running the turn again.
//
// A request claims the key before running the turn (Claim), then either
// stores the reply (Remember) or gives the key up on failure (Release).
// The claim is a pending row on the (user_id, key) unique index, so two
// concurrent deliveries cannot both run the turn.
type ReplyStore struct {
	DB         *gorm.DB
	TTL        time.Duration
	PendingTTL time.Duration
}

// Claim takes ownership of (userID, key). It returns done=true with the
// stored reply when the message was already answered, and ErrReplyInFlight
// when another request holds the claim.
func (s *ReplyStore) Claim(ctx context.Context, userID, key string) (reply string, done bool, err error) {
	if key == "" {
		return "", false, nil
	}
	ttl := s.PendingTTL
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	rec, claimed, err := repo.ClaimIdempotency(ctx, s.DB, userID, key, ttl, time.Now())
	if err != nil {
		return "", false, err
	}
	if claimed {
		return "", false, nil
	}
	if rec.Status == domain.IdempotencyPending {
		return "", false, ErrReplyInFlight
	}
	return rec.Reply, true, nil
}

// Release drops a pending claim so a redelivery can run the turn again.
func (s *ReplyStore) Release(ctx context.Context, userID, key string) error {
	if key == "" {
		return nil
	}
	return repo.ReleaseIdempotency(ctx, s.DB, userID, key)
}

// Exists reports whether a valid reply is stored for (userID, key).
func (s *ReplyStore) Exists(ctx context.Context, userID, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, userID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Remember stores reply for (userID, key), completing the caller's claim.
// A concurrent writer winning the race is not an error.
func (s *ReplyStore) Remember(ctx context.Context, userID, key, reply string, status int) error {
	if key == "" {
		return nil
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultReplyTTL
	}
	err := repo.CompleteIdempotency(ctx, s.DB, userID, key, reply, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
