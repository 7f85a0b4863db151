package store

import (
	"context"
	"testing"

	"github.com/erazemk/sledljivost/internal/db"
)

func TestGetJWTSecret_GeneratesAndPersists(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	// First call should generate a secret.
	secret1, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 == "" {
		t.Fatal("expected non-empty secret")
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	// Second call should return the same secret.
	secret2, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestSettingRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	value, err := getSetting(ctx, database, "missing")
	if err != nil {
		t.Fatalf("getSetting: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value for missing key, got %q", value)
	}

	if err := setSetting(ctx, database, "k", "one"); err != nil {
		t.Fatalf("setSetting: %v", err)
	}
	if err := setSetting(ctx, database, "k", "two"); err != nil {
		t.Fatalf("setSetting overwrite: %v", err)
	}

	value, err = getSetting(ctx, database, "k")
	if err != nil {
		t.Fatalf("getSetting: %v", err)
	}
	if value != "two" {
		t.Errorf("expected 'two', got %q", value)
	}
}
