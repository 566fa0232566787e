package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/domain"
)

// GetSessionByUser returns the user's session, or ErrNotFound.
func GetSessionByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession binds userID to threadID. It returns ErrDuplicate when the
// user already has a session (unique index on user_id).
func CreateSession(ctx context.Context, db *gorm.DB, userID, threadID string) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ThreadID:  threadID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}
