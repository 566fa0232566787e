package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():           "users",
		Product{}.TableName():        "products",
		InventoryEntry{}.TableName(): "inventory_entries",
		Transaction{}.TableName():    "transactions",
		Session{}.TableName():        "sessions",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&User{}, &Product{}, &InventoryEntry{}, &Transaction{}, &Session{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	checks := []struct {
		model any
		index string
	}{
		{&User{}, "ux_users_phone"},
		{&Product{}, "ux_products_identity"},
		{&InventoryEntry{}, "ux_inventory_user_product"},
		{&Transaction{}, "idx_tx_user_created"},
		{&Session{}, "ux_sessions_user"},
	}
	for _, c := range checks {
		if !m.HasIndex(c.model, c.index) {
			t.Fatalf("expected index %s on %T", c.index, c.model)
		}
	}
}

func seedUserProduct(t *testing.T) (*User, *Product) {
	t.Helper()
	return &User{ID: "u1", Phone: "+5215550000001"}, &Product{ID: "p1", OwnerID: "u1", Name: "Leche", Amount: "1L", Category: "Lácteos"}
}

func TestInventoryEntry_UniquePerUserProduct_AndNonNegative(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&User{}, &Product{}, &InventoryEntry{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	u, p := seedUserProduct(t)
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	if err := db.Create(&InventoryEntry{ID: "e1", UserID: "u1", ProductID: "p1", Quantity: 5, BuyingPrice: 10}).Error; err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if err := db.Create(&InventoryEntry{ID: "e2", UserID: "u1", ProductID: "p1", Quantity: 1, BuyingPrice: 10}).Error; err == nil {
		t.Fatalf("expected unique violation for second entry on same (user, product)")
	}
	if err := db.Exec("UPDATE inventory_entries SET quantity = -1 WHERE id = ?", "e1").Error; err == nil {
		t.Fatalf("expected check constraint to reject negative quantity")
	}
}

func TestTransaction_IsImmutable(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&User{}, &Product{}, &Transaction{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	u, p := seedUserProduct(t)
	db.Create(u)
	db.Create(p)

	uid := u.ID
	tx := &Transaction{ID: "t1", ProductID: p.ID, UserID: &uid, Quantity: 2, BuyingPriceUnit: 10, SellingPriceUnit: 15, CreatedAt: time.Now().UTC()}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if err := db.Model(tx).Update("quantity", 9).Error; !errors.Is(err, ErrTransactionImmutable) {
		t.Fatalf("expected ErrTransactionImmutable on update, got %v", err)
	}
	if err := db.Delete(tx).Error; !errors.Is(err, ErrTransactionImmutable) {
		t.Fatalf("expected ErrTransactionImmutable on delete, got %v", err)
	}

	var got Transaction
	if err := db.First(&got, "id = ?", "t1").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Quantity != 2 {
		t.Fatalf("transaction was mutated: %+v", got)
	}
}

func TestCanonicalCategory(t *testing.T) {
	cases := map[string]string{
		"Lácteos":      "Lácteos",
		"lacteos":      "Lácteos",
		"  LÁCTEOS ":   "Lácteos",
		"café y té":    "Café y té",
		"":             DefaultCategory,
		"Electrónicos": DefaultCategory,
		"otros":        DefaultCategory,
	}
	for in, want := range cases {
		if got := CanonicalCategory(in); got != want {
			t.Fatalf("CanonicalCategory(%q) = %q; want %q", in, got, want)
		}
	}
}
