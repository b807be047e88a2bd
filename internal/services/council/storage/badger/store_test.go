package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osusu/osusu/internal/services/council"
	"github.com/osusu/osusu/internal/services/council/storage"
)

var storeTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	})
	return store
}

func TestCouncilRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.NextCouncilID(ctx)
	if err != nil {
		t.Fatalf("NextCouncilID() error = %v", err)
	}
	record, err := council.NewCouncil(id, []string{"ama", "kofi", "esi"}, 2, storeTime)
	if err != nil {
		t.Fatalf("NewCouncil() error = %v", err)
	}
	if err := store.CreateCouncil(ctx, record); err != nil {
		t.Fatalf("CreateCouncil() error = %v", err)
	}

	if err := record.Approve("kofi", storeTime.Add(time.Minute)); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if err := store.UpdateCouncil(ctx, record); err != nil {
		t.Fatalf("UpdateCouncil() error = %v", err)
	}

	got, err := store.GetCouncil(ctx, id)
	if err != nil {
		t.Fatalf("GetCouncil() error = %v", err)
	}
	if got.ID != id {
		t.Fatalf("ID = %d, want %d", got.ID, id)
	}
	if len(got.Elders) != 3 || got.Elders[1] != "kofi" {
		t.Fatalf("Elders = %v, want [ama kofi esi]", got.Elders)
	}
	if got.Threshold != 2 {
		t.Fatalf("Threshold = %d, want 2", got.Threshold)
	}
	if len(got.Approvals) != 1 || got.Approvals[0] != "kofi" {
		t.Fatalf("Approvals = %v, want [kofi]", got.Approvals)
	}
	if !got.CreatedAt.Equal(storeTime) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, storeTime)
	}
	if !got.UpdatedAt.Equal(storeTime.Add(time.Minute)) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, storeTime.Add(time.Minute))
	}
}

func TestNextCouncilIDMonotonic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for want := uint64(1); want <= 5; want++ {
		got, err := store.NextCouncilID(ctx)
		if err != nil {
			t.Fatalf("NextCouncilID() error = %v", err)
		}
		if got != want {
			t.Fatalf("NextCouncilID() = %d, want %d", got, want)
		}
	}
}

func TestNextCouncilIDSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	for want := uint64(1); want <= 2; want++ {
		got, err := store.NextCouncilID(ctx)
		if err != nil {
			t.Fatalf("NextCouncilID() error = %v", err)
		}
		if got != want {
			t.Fatalf("NextCouncilID() = %d, want %d", got, want)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() {
		if err := reopened.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}()

	got, err := reopened.NextCouncilID(ctx)
	if err != nil {
		t.Fatalf("NextCouncilID() after reopen error = %v", err)
	}
	if got != 3 {
		t.Fatalf("NextCouncilID() after reopen = %d, want 3", got)
	}
}

func TestGetCouncilNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetCouncil(context.Background(), 404)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetCouncil() error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestUpdateCouncilNotFound(t *testing.T) {
	store := openTestStore(t)

	record, err := council.NewCouncil(99, []string{"ama"}, 1, storeTime)
	if err != nil {
		t.Fatalf("NewCouncil() error = %v", err)
	}
	err = store.UpdateCouncil(context.Background(), record)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateCouncil() error = %v, want %v", err, storage.ErrNotFound)
	}
}
