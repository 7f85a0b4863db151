package store

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/erazemk/sledljivost/internal/db"
	"github.com/erazemk/sledljivost/internal/model"
)

func TestProductImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	ls := NewLedgerStore(database)

	if err := ls.InitOwner(ctx, testAccount); err != nil {
		t.Fatalf("InitOwner: %v", err)
	}
	if err := ls.InsertProduct(ctx, testProduct(1, time.Now())); err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}

	img, mime, err := GetProductImage(ctx, database, 1)
	if err != nil {
		t.Fatalf("GetProductImage: %v", err)
	}
	if img != nil || mime != "" {
		t.Errorf("expected no image, got %d bytes of %q", len(img), mime)
	}

	if err := SetProductImage(ctx, database, 1, []byte("first"), "image/png"); err != nil {
		t.Fatalf("SetProductImage: %v", err)
	}
	if err := SetProductImage(ctx, database, 1, []byte("second"), "image/jpeg"); err != nil {
		t.Fatalf("SetProductImage replace: %v", err)
	}

	img, mime, err = GetProductImage(ctx, database, 1)
	if err != nil {
		t.Fatalf("GetProductImage: %v", err)
	}
	if !bytes.Equal(img, []byte("second")) || mime != "image/jpeg" {
		t.Errorf("expected replaced jpeg image, got %q (%s)", img, mime)
	}
}

func TestProductImageRequiresProduct(t *testing.T) {
	database := db.NewTestDB(t)

	err := SetProductImage(context.Background(), database, 42, []byte("x"), "image/png")
	if err == nil {
		t.Error("expected foreign key error for unknown product")
	}
}

func testProduct(id int64, created time.Time) model.Product {
	return model.Product{
		ID:               id,
		Name:             "Amoxicillin 500mg",
		BatchNumber:      "AMX-2024-001",
		Manufacturer:     testAccount,
		ManufacturerName: "Krka",
		Quantity:         1000,
		MfgDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Category:         "Antibiotic",
		CurrentHolder:    testAccount,
		IsAuthentic:      true,
		CreatedAt:        created,
	}
}
