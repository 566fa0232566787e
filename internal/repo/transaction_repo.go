package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/domain"
)

// CreateTransaction appends a sale record. ID and CreatedAt are filled in when
// empty; CreatedAt is stored in UTC.
func CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return db.WithContext(ctx).Create(t).Error
}

// ListTransactionsSince returns the user's sales with created_at >= since,
// ordered (created_at ASC, id ASC).
func ListTransactionsSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
