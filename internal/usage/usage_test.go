package usage_test

import (
	"context"
	"testing"
	"time"

	"github.com/chatforge/knowledge/internal/testutil"
	"github.com/chatforge/knowledge/internal/usage"
)

func TestRecordIncrements(t *testing.T) {
	db := testutil.SetupPostgres(t)
	store := usage.New(db.Pool)
	ctx := context.Background()
	today := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if err := store.Record(ctx, "acme"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := store.Record(ctx, "globex"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	count, err := store.DayCount(ctx, "acme", today)
	if err != nil {
		t.Fatalf("DayCount: %v", err)
	}
	if count != 3 {
		t.Errorf("acme count = %d, want 3", count)
	}

	count, err = store.DayCount(ctx, "globex", today)
	if err != nil {
		t.Fatalf("DayCount: %v", err)
	}
	if count != 1 {
		t.Errorf("globex count = %d, want 1", count)
	}
}

func TestDayCountMissing(t *testing.T) {
	db := testutil.SetupPostgres(t)
	store := usage.New(db.Pool)

	if _, err := store.DayCount(context.Background(), "nobody", time.Now().UTC()); err == nil {
		t.Fatal("DayCount for an unrecorded tenant succeeded")
	}
}
