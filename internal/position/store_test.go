package position

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store, err := NewGormStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestGormStore_MissThenHit(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "position:pl-1"); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v, want miss", ok, err)
	}

	if err := store.Set(ctx, "position:pl-1", "7"); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, ok, err := store.Get(ctx, "position:pl-1")
	if err != nil || !ok || val != "7" {
		t.Fatalf("get: val=%q ok=%v err=%v, want 7", val, ok, err)
	}
}

func TestGormStore_SetOverwrites(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "position:pl-1", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "position:pl-1", "2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	val, ok, err := store.Get(ctx, "position:pl-1")
	if err != nil || !ok || val != "2" {
		t.Fatalf("get after overwrite: val=%q ok=%v err=%v, want 2", val, ok, err)
	}
}

func TestGormStore_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "position:pl-1", "3"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "position:pl-2", "9"); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, _, _ := store.Get(ctx, "position:pl-1")
	if val != "3" {
		t.Fatalf("pl-1 = %q, want 3", val)
	}
	val, _, _ = store.Get(ctx, "position:pl-2")
	if val != "9" {
		t.Fatalf("pl-2 = %q, want 9", val)
	}
}

func TestGormStore_Delete(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "position:pl-1", "4"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Delete(ctx, "position:pl-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := store.Get(ctx, "position:pl-1"); err != nil || ok {
		t.Fatalf("after delete: ok=%v err=%v, want miss", ok, err)
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, "position:absent"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestRedisStore_DisabledIsSafe(t *testing.T) {
	t.Parallel()

	// Unreachable Redis leaves the store disabled but functional as a
	// no-op: sets succeed silently and gets report misses.
	store := &RedisStore{disabled: true}
	ctx := context.Background()

	if err := store.Set(ctx, "position:pl-1", "5"); err != nil {
		t.Fatalf("set on disabled store: %v", err)
	}
	if _, ok, err := store.Get(ctx, "position:pl-1"); err != nil || ok {
		t.Fatalf("get on disabled store: ok=%v err=%v, want miss", ok, err)
	}
	if err := store.Delete(ctx, "position:pl-1"); err != nil {
		t.Fatalf("delete on disabled store: %v", err)
	}
	if store.IsAvailable() {
		t.Fatal("disabled store must report unavailable")
	}
}
