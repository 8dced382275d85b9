package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepositoryCreateAssignsID(t *testing.T) {
	repo := NewMemoryRepository()
	record, err := repo.Create(context.Background(), Record{
		FieldName: "banner",
		Category:  "banner",
		Key:       "banners/123-abc.png",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected generated ID")
	}
	if record.StoredAt.IsZero() {
		t.Fatal("expected StoredAt to be stamped")
	}

	loaded, err := repo.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Key != record.Key {
		t.Fatalf("expected key %q, got %q", record.Key, loaded.Key)
	}
}

func TestMemoryRepositoryGetMissing(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryListFiltersAndSorts(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Now().UTC()
	for i, category := range []string{"video", "banner", "video"} {
		if _, err := repo.Create(context.Background(), Record{
			Category: category,
			Key:      string(rune('a' + i)),
			StoredAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	videos, err := repo.List(context.Background(), "video", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	if !videos[0].StoredAt.After(videos[1].StoredAt) {
		t.Fatal("expected newest-first ordering")
	}

	limited, err := repo.List(context.Background(), "", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit applied, got %d records", len(limited))
	}
}

func TestMemoryRepositoryDelete(t *testing.T) {
	repo := NewMemoryRepository()
	record, err := repo.Create(context.Background(), Record{Key: "others/x.bin"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Delete(context.Background(), record.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(context.Background(), record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
