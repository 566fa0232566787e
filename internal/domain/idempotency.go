package domain

import "time"

// Idempotency records the reply produced for an inbound message, keyed by
// (user_id, key). The key is the provider message id or a client supplied
// Idempotency-Key, so transport retries replay the reply instead of running
// the conversation turn (and its side effects) again.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;uniqueIndex:ux_idem_user_key,priority:1"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_user_key,priority:2"`
	Reply     string    `gorm:"type:text;not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// IdempotencyPending is the Status of a claim whose turn is still running.
const IdempotencyPending = 0

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
