package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestSQLiteStore(t *testing.T, now func() time.Time) *SQLiteStore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "cache.db")
	store, err := OpenSQLiteStore(dsn, now)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close sqlite store: %v", err)
		}
	})
	return store
}

func TestSQLiteStore_SetAndGet(t *testing.T) {
	t.Parallel()

	store := openTestSQLiteStore(t, nil)

	if err := store.Set(context.Background(), KeyConferenceRooms, []byte(`["room"]`), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, ok, err := store.Get(context.Background(), KeyConferenceRooms)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || string(value) != `["room"]` {
		t.Fatalf("get = %q, %v", value, ok)
	}

	if _, ok, _ := store.Get(context.Background(), "missing"); ok {
		t.Fatal("missing key must not be found")
	}
}

func TestSQLiteStore_SetReplacesValue(t *testing.T) {
	t.Parallel()

	store := openTestSQLiteStore(t, nil)

	if err := store.Set(context.Background(), KeyPeople, []byte("old"), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(context.Background(), KeyPeople, []byte("new"), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, ok, err := store.Get(context.Background(), KeyPeople)
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}
	if string(value) != "new" {
		t.Fatalf("value = %q, want the replacement", value)
	}
}

func TestSQLiteStore_ExpiryAndPurge(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	store := openTestSQLiteStore(t, func() time.Time { return current })

	if err := store.Set(context.Background(), "short", []byte("a"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(context.Background(), "long", []byte("b"), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	current = current.Add(10 * time.Minute)

	if _, ok, _ := store.Get(context.Background(), "short"); ok {
		t.Fatal("expired entry must not be served")
	}
	if _, ok, _ := store.Get(context.Background(), "long"); !ok {
		t.Fatal("live entry must still be served")
	}

	if err := store.PurgeExpired(context.Background()); err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), "long"); !ok {
		t.Fatal("purge must keep the live entry")
	}
}

func TestSQLiteStore_Invalidate(t *testing.T) {
	t.Parallel()

	store := openTestSQLiteStore(t, nil)

	if err := store.Set(context.Background(), "key", []byte("value"), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), "key"); ok {
		t.Fatal("invalidate must drop every entry")
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "cache.db")

	store, err := OpenSQLiteStore(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	if err := store.Set(context.Background(), KeyConferenceRooms, []byte("persisted"), time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := OpenSQLiteStore(dsn, nil)
	if err != nil {
		t.Fatalf("failed to reopen sqlite store: %v", err)
	}
	defer func() {
		if err := reopened.Close(); err != nil {
			t.Errorf("failed to close sqlite store: %v", err)
		}
	}()

	value, ok, err := reopened.Get(context.Background(), KeyConferenceRooms)
	if err != nil || !ok {
		t.Fatalf("get after reopen = %v, %v", ok, err)
	}
	if string(value) != "persisted" {
		t.Fatalf("value = %q", value)
	}
}
