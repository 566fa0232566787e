// Package repo implements the ledger store. This file provides repository
// helpers for the Idempotency model used to replay replies to retried
// inbound messages.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/domain"
)

// GetIdempotency returns a completed, non-expired record for (userID, key)
// or ErrNotFound. Pending claims are not returned.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND status <> ? AND expires_at > ?", userID, key, domain.IdempotencyPending, now.UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency stores the reply for (userID, key) and returns
// ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, key, reply string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		Reply:     reply,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// ClaimIdempotency inserts a pending record for (userID, key) valid for
// pendingTTL. claimed is true when this caller now owns the key. Otherwise rec
// is the live record held by someone else, pending or completed. Expired
// records are replaced.
func ClaimIdempotency(ctx context.Context, db *gorm.DB, userID, key string, pendingTTL time.Duration, now time.Time) (rec *domain.Idempotency, claimed bool, err error) {
	now = now.UTC()
	for attempt := 0; attempt < 3; attempt++ {
		rec = &domain.Idempotency{
			ID:        uuid.NewString(),
			UserID:    userID,
			Key:       key,
			Status:    domain.IdempotencyPending,
			CreatedAt: now,
			ExpiresAt: now.Add(pendingTTL),
		}
		err = db.WithContext(ctx).Create(rec).Error
		if err == nil {
			return rec, true, nil
		}
		if !isDuplicate(err) {
			return nil, false, err
		}

		var cur domain.Idempotency
		err = db.WithContext(ctx).Where("user_id = ? AND key = ?", userID, key).First(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue // released in between
		}
		if err != nil {
			return nil, false, err
		}
		if cur.ExpiresAt.After(now) {
			return &cur, false, nil
		}
		if err := db.WithContext(ctx).
			Where("id = ? AND expires_at <= ?", cur.ID, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return nil, false, err
		}
	}
	return nil, false, ErrDuplicate
}

// CompleteIdempotency stores the reply on the caller's pending claim, or
// creates the record when there was no claim. It returns ErrDuplicate when a
// completed record already exists.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, userID, key, reply string, status int, ttl time.Duration) error {
	res := db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("user_id = ? AND key = ? AND status = ?", userID, key, domain.IdempotencyPending).
		Updates(map[string]any{
			"reply":      reply,
			"status":     status,
			"expires_at": time.Now().UTC().Add(ttl),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	_, err := CreateIdempotency(ctx, db, userID, key, reply, status, ttl)
	return err
}

// ReleaseIdempotency drops a pending claim so a later delivery can run.
func ReleaseIdempotency(ctx context.Context, db *gorm.DB, userID, key string) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND status = ?", userID, key, domain.IdempotencyPending).
		Delete(&domain.Idempotency{}).Error
}
