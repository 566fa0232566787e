package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	// It aliases gorm.ErrRecordNotFound so callers can use either.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrDuplicate indicates a unique constraint rejected the insert.
	ErrDuplicate = errors.New("duplicate")

	// ErrStockConflict is returned by DecrementStock when the entry no longer
	// holds enough units (or no longer exists).
	ErrStockConflict = errors.New("insufficient stock")
)

// isDuplicate reports whether err is a unique-constraint violation.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
