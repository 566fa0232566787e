package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-inventory-bot/internal/domain"
)

// GetOrCreateProduct returns the owner's product identified by
// (name, brand, amount), creating it with the given category when absent.
// An existing product keeps its category.
func GetOrCreateProduct(ctx context.Context, db *gorm.DB, ownerID, name, brand, amount, category string) (*domain.Product, error) {
	now := time.Now().UTC()
	p := &domain.Product{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Brand:     brand,
		Amount:    amount,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "name"}, {Name: "brand"}, {Name: "amount"}},
			DoNothing: true,
		}).
		Create(p).Error
	if err != nil && !isDuplicate(err) {
		return nil, err
	}

	var out domain.Product
	if err := db.WithContext(ctx).
		Where("owner_id = ? AND name = ? AND brand = ? AND amount = ?", ownerID, name, brand, amount).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
