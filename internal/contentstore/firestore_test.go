package contentstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"finitefield.org/hanko-sitemap/internal/platform/config"
	pfirestore "finitefield.org/hanko-sitemap/internal/platform/firestore"
)

func TestRecordFromFields(t *testing.T) {
	edited := time.Date(2024, 1, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600))
	rec := recordFromFields("P1", map[string]any{
		"title":            "About",
		"space_id":         "S",
		"last_edited_time": edited,
		"children":         []any{"P2", 42, "P3"},
	})
	if rec.ID != "P1" || rec.Title != "About" || rec.SpaceID != "S" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.LastEditedTime != "2024-01-01T00:00:00Z" {
		t.Fatalf("expected UTC timestamp, got %q", rec.LastEditedTime)
	}
	if len(rec.ChildIDs) != 2 {
		t.Fatalf("expected non-string children ignored, got %v", rec.ChildIDs)
	}

	if got := recordFromFields("P2", map[string]any{"last_edited_time": int64(1704067200000)}).LastEditedTime; got != "1704067200000" {
		t.Fatalf("unexpected epoch timestamp %q", got)
	}
	if got := recordFromFields("P3", map[string]any{"last_edited_time": true}).LastEditedTime; got != "" {
		t.Fatalf("expected unsupported type dropped, got %q", got)
	}
}

func TestClassifyGetError(t *testing.T) {
	if err := classifyGetError("P1", status.Error(codes.NotFound, "no doc")); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}

	for _, code := range []codes.Code{codes.Unavailable, codes.ResourceExhausted, codes.Internal} {
		err := classifyGetError("P1", status.Error(code, "backend"))
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("%s: expected ErrStoreUnavailable, got %v", code, err)
		}
		if !pfirestore.IsUnavailable(err) {
			t.Fatalf("%s: expected wrapped firestore error to stay inspectable", code)
		}
	}

	err := classifyGetError("P1", status.Error(codes.PermissionDenied, "denied"))
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected permanent error left unlabelled, got %v", err)
	}
	if !errors.Is(classifyGetError("P1", context.Canceled), context.Canceled) {
		t.Fatalf("expected cancellation passed through")
	}
}

func TestFirestoreStoreAgainstEmulator(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "sitemap-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close() })

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	collection := "pages_" + time.Now().UTC().Format("20060102150405.000000000")
	if _, err := client.Collection(collection).Doc("P0").Set(ctx, map[string]any{
		"title":            "Home",
		"last_edited_time": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"children":         []any{"P1"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store, err := NewFirestoreStore(provider, collection)
	if err != nil {
		t.Fatalf("NewFirestoreStore: %v", err)
	}
	rec, err := store.GetPage(ctx, "P0")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if rec.Title != "Home" || rec.LastEditedTime != "2024-01-01T00:00:00Z" || len(rec.ChildIDs) != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := store.GetPage(ctx, "P1"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
}

func TestNewFirestoreStoreValidates(t *testing.T) {
	if _, err := NewFirestoreStore(nil, "pages"); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewFirestoreStore(pfirestore.NewProvider(config.FirestoreConfig{}), " "); err == nil {
		t.Fatalf("expected error for empty collection")
	}
}
