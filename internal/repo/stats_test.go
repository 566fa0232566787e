package repo

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestInventoryStats_NoTable(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, _, err := InventoryStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error due to missing inventory table")
	}
}

func TestInventoryStats_ZeroRows(t *testing.T) {
	db := newLedgerDB(t)
	count, maxAt, err := InventoryStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("InventoryStats: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestInventoryStats_TracksStockMovements(t *testing.T) {
	db := newLedgerDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "+5215550000010")
	other := seedUser(t, db, "+5215550000011")

	leche, err := GetOrCreateProduct(ctx, db, u.ID, "Leche", "Lala", "1 litro", "Lácteos")
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	pan, err := GetOrCreateProduct(ctx, db, u.ID, "Pan", "", "1 pieza", "Panadería")
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	otherProd, err := GetOrCreateProduct(ctx, db, other.ID, "Leche", "Lala", "1 litro", "Lácteos")
	if err != nil {
		t.Fatalf("product: %v", err)
	}

	if _, err := AddStock(ctx, db, u.ID, leche.ID, 2, 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	e, err := AddStock(ctx, db, u.ID, pan.ID, 5, 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := AddStock(ctx, db, other.ID, otherProd.ID, 9, 10); err != nil {
		t.Fatalf("add: %v", err)
	}

	count, before, err := InventoryStats(ctx, db, u.ID)
	if err != nil || count != 2 || before == nil {
		t.Fatalf("stats: count=%d max=%v err=%v", count, before, err)
	}

	if err := DecrementStock(ctx, db, e.ID, 1); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	count, after, err := InventoryStats(ctx, db, u.ID)
	if err != nil || count != 2 {
		t.Fatalf("stats after sale: count=%d err=%v", count, err)
	}
	if !after.After(*before) {
		t.Fatalf("max updated_at did not advance: before=%v after=%v", before, after)
	}
}
