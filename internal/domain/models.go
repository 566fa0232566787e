// Package domain defines the persistence models for users, products, stock
// entries, sales transactions, and agent sessions. These types are mapped
// with GORM and form the ledger the inventory bot operates on.
package domain

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrTransactionImmutable is returned by the Transaction hooks when a caller
// tries to update or delete a recorded sale.
var ErrTransactionImmutable = errors.New("transactions are immutable")

// User is a business owner identified by their phone number. Users are
// provisioned on first inbound contact and never deleted by the bot.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Phone: E.164-ish phone number without transport prefix; unique.
//   - CreatedAt: first contact time.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Phone     string    `json:"phone"      gorm:"type:varchar(32);not null;uniqueIndex:ux_users_phone"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Product is a catalog item owned by a single user. Its identity is the
// tuple (owner, name, brand, amount); an absent brand is stored as "".
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - OwnerID: user that created the product.
//   - Name / Brand / Amount: free-text descriptors as supplied by the agent.
//   - Category: one of Categories, canonicalized on write.
type Product struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	OwnerID   string    `json:"owner_id"   gorm:"type:char(36);not null;uniqueIndex:ux_products_identity,priority:1"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;uniqueIndex:ux_products_identity,priority:2"`
	Brand     string    `json:"brand"      gorm:"type:varchar(255);not null;default:'';uniqueIndex:ux_products_identity,priority:3"`
	Amount    string    `json:"amount"     gorm:"type:varchar(64);not null;uniqueIndex:ux_products_identity,priority:4"`
	Category  string    `json:"category"   gorm:"type:varchar(64);not null;default:'Otros';index:idx_products_category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Owner User `json:"-" gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// InventoryEntry is the live stock a user holds of one product. There is at
// most one entry per (user, product); an entry whose quantity reaches zero is
// deleted rather than kept as an empty row.
type InventoryEntry struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:char(36);not null;uniqueIndex:ux_inventory_user_product,priority:1"`
	ProductID   string    `json:"product_id"   gorm:"type:char(36);not null;uniqueIndex:ux_inventory_user_product,priority:2"`
	Quantity    int       `json:"quantity"     gorm:"not null;check:quantity >= 0"`
	BuyingPrice float64   `json:"buying_price" gorm:"not null;check:buying_price >= 0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	User    User    `json:"-"       gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Product Product `json:"product" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for InventoryEntry.
func (InventoryEntry) TableName() string { return "inventory_entries" }

// Transaction is an immutable sale record. Prices are captured at sale time
// so reports never depend on the (possibly deleted) inventory entry.
//
// Fields:
//   - ProductID: product that was sold.
//   - UserID: seller; nullable so history survives user removal.
//   - Quantity: units sold (> 0).
//   - BuyingPriceUnit / SellingPriceUnit: unit cost and unit price at sale time.
//   - CreatedAt: sale time, indexed with UserID for report windows.
type Transaction struct {
	ID               string    `json:"id"                 gorm:"type:char(36);primaryKey"`
	ProductID        string    `json:"product_id"         gorm:"type:char(36);not null;index"`
	UserID           *string   `json:"user_id,omitempty"  gorm:"type:char(36);index:idx_tx_user_created,priority:1"`
	Quantity         int       `json:"quantity"           gorm:"not null;check:quantity > 0"`
	BuyingPriceUnit  float64   `json:"buying_price_unit"  gorm:"not null"`
	SellingPriceUnit float64   `json:"selling_price_unit" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"         gorm:"not null;index:idx_tx_user_created,priority:2"`

	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	User    *User   `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// BeforeUpdate rejects any mutation of a recorded sale.
func (*Transaction) BeforeUpdate(*gorm.DB) error { return ErrTransactionImmutable }

// BeforeDelete rejects deletion of a recorded sale.
func (*Transaction) BeforeDelete(*gorm.DB) error { return ErrTransactionImmutable }

// Session binds a user to the remote conversation thread held by the agent
// service. At most one session exists per user.
type Session struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;uniqueIndex:ux_sessions_user"`
	ThreadID  string    `json:"thread_id"  gorm:"type:varchar(128);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }
