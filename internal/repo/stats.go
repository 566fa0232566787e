// Package repo implements the ledger store. This file provides small
// aggregate queries used for conditional responses (ETag) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/domain"
)

// InventoryStats returns the number of live entries a user holds and the
// greatest UpdatedAt among them. Any stock movement changes one of the two:
// ingest and sales bump updated_at, and emptied entries are deleted.
//
// When the user has no entries the count is 0 and maxUpdatedAt is nil.
func InventoryStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.InventoryEntry{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest updated_at by ordering; MAX() comes back as TEXT in SQLite.
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.InventoryEntry{}).
		Where("user_id = ?", userID).
		Select("updated_at").Order("updated_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
