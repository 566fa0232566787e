package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-inventory-bot/internal/domain"
)

// GetOrCreateUser returns the user with the given phone, inserting it first
// if needed. Concurrent first contacts converge on a single row: the insert
// is ON CONFLICT DO NOTHING and the row is always re-read.
func GetOrCreateUser(ctx context.Context, db *gorm.DB, phone string) (*domain.User, error) {
	u := &domain.User{
		ID:        uuid.NewString(),
		Phone:     phone,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
		Create(u).Error
	if err != nil && !isDuplicate(err) {
		return nil, err
	}
	return GetUserByPhone(ctx, db, phone)
}

// GetUserByPhone fetches a user by phone, or ErrNotFound.
func GetUserByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("phone = ?", phone).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
