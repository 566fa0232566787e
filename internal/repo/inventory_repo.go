// Package repo implements the ledger store. This file holds the inventory
// entry operations.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. Quantity changes are single conditional
// statements so concurrent turns never read-modify-write a stale quantity:
//
//   - AddStock upserts on (user_id, product_id) and adds to the stored
//     quantity in the same statement.
//   - DecrementStock subtracts only WHERE quantity >= n; zero rows affected
//     means the stock was not there (ErrStockConflict).
//   - DeleteEntryIfEmpty removes the row once it reaches exactly zero.
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

// AddStock creates the (user, product) entry or adds qty to the existing one.
// The buying price is refreshed from the newest line.
func AddStock(ctx context.Context, db *gorm.DB, userID, productID string, qty int, buyingPrice float64) (*domain.InventoryEntry, error) {
	now := time.Now().UTC()
	e := &domain.InventoryEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProductID:   productID,
		Quantity:    qty,
		BuyingPrice: buyingPrice,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":     gorm.Expr("inventory_entries.quantity + excluded.quantity"),
				"buying_price": gorm.Expr("excluded.buying_price"),
				"updated_at":   gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(e).Error
	if err != nil {
		return nil, err
	}
	return GetEntryByProduct(ctx, db, userID, productID)
}

// GetEntryByProduct fetches the user's live entry for a product, or ErrNotFound.
func GetEntryByProduct(ctx context.Context, db *gorm.DB, userID, productID string) (*domain.InventoryEntry, error) {
	var e domain.InventoryEntry
	err := db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntry fetches an entry by id, or ErrNotFound.
func GetEntry(ctx context.Context, db *gorm.DB, id string) (*domain.InventoryEntry, error) {
	var e domain.InventoryEntry
	err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntriesByCategory returns the user's live entries whose product is in
// the given (canonical) category, with Product preloaded, ordered
// deterministically (created_at ASC, id ASC).
func ListEntriesByCategory(ctx context.Context, db *gorm.DB, userID, category string) ([]domain.InventoryEntry, error) {
	var out []domain.InventoryEntry
	err := db.WithContext(ctx).
		Joins("JOIN products ON products.id = inventory_entries.product_id").
		Where("inventory_entries.user_id = ? AND products.category = ?", userID, category).
		Preload("Product").
		Order("inventory_entries.created_at ASC, inventory_entries.id ASC").
		Find(&out).Error
	return out, err
}

// CountEntries returns the number of live entries for a user.
func CountEntries(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.InventoryEntry{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// ListEntriesPage returns a page of the user's entries (created_at ASC, id ASC)
// with Product preloaded.
func ListEntriesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.InventoryEntry, error) {
	var out []domain.InventoryEntry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Product").
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DecrementStock atomically subtracts qty from the entry if it still holds at
// least qty units. It returns ErrStockConflict otherwise.
func DecrementStock(ctx context.Context, db *gorm.DB, entryID string, qty int) error {
	res := db.WithContext(ctx).
		Model(&domain.InventoryEntry{}).
		Where("id = ? AND quantity >= ?", entryID, qty).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStockConflict
	}
	return nil
}

// DeleteEntryIfEmpty removes the entry when its quantity is exactly zero and
// reports whether a row was deleted.
func DeleteEntryIfEmpty(ctx context.Context, db *gorm.DB, entryID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND quantity = 0", entryID).
		Delete(&domain.InventoryEntry{})
	return res.RowsAffected > 0, res.Error
}
