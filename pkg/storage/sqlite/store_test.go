package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/offline-cache/pkg/storage"
)

func openTempStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Error("Open with blank path should return error")
	}
}

func TestStorage_PutGet(t *testing.T) {
	s := openTempStorage(t)
	ctx := context.Background()

	st, err := s.Open(ctx, "v1")
	if err != nil {
		t.Fatalf("Open(v1) failed: %v", err)
	}

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	for _, v := range []string{"one", "two", "three"} {
		if err := st.Put(ctx, "GET http://app/", []byte(v)); err != nil {
			t.Fatalf("Put(%q) failed: %v", v, err)
		}
	}

	got, err := st.Get(ctx, "GET http://app/")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "three" {
		t.Errorf("Get() = %q, want %q", got, "three")
	}

	var count int
	if err := s.sqlDB.QueryRow(`SELECT COUNT(*) FROM entries WHERE store = 'v1'`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("store holds %d entries, want 1", count)
	}
}

func TestStorage_NamesAndDelete(t *testing.T) {
	s := openTempStorage(t)
	ctx := context.Background()

	old, _ := s.Open(ctx, "v1")
	if err := old.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Open(ctx, "v2"); err != nil {
		t.Fatalf("Open(v2) failed: %v", err)
	}
	// Reopening must not duplicate the store.
	if _, err := s.Open(ctx, "v2"); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	names, err := s.Names(ctx)
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if len(names) != 2 || names[0] != "v1" || names[1] != "v2" {
		t.Errorf("Names() = %v, want [v1 v2]", names)
	}

	existed, err := s.Delete(ctx, "v1")
	if err != nil || !existed {
		t.Fatalf("Delete(v1) = %v, %v; want true, nil", existed, err)
	}
	existed, err = s.Delete(ctx, "v1")
	if err != nil || existed {
		t.Errorf("second Delete(v1) = %v, %v; want false, nil", existed, err)
	}

	if _, err := old.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("entry survived store delete: %v", err)
	}
	if err := old.Put(ctx, "k", []byte("late")); !errors.Is(err, storage.ErrStoreDeleted) {
		t.Errorf("Expected ErrStoreDeleted, got %v", err)
	}

	names, _ = s.Names(ctx)
	if len(names) != 1 || names[0] != "v2" {
		t.Errorf("Names() after delete = %v, want [v2]", names)
	}
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	st, _ := s.Open(ctx, "v1")
	if err := st.Put(ctx, "k", []byte("kept")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	st, _ = s.Open(ctx, "v1")
	got, err := st.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "kept" {
		t.Errorf("Get() = %q, want %q", got, "kept")
	}
}
