package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()

	var n int
	row := db.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count rows in %s: %v", table, err)
	}
	return n
}

func TestDeleteOlderThan(t *testing.T) {
	db := openTestDB(t)

	const (
		oldTs    int64 = 50
		cutoffTs int64 = 100
		newTs    int64 = 150
	)

	for _, ts := range []int64{oldTs, cutoffTs, newTs} {
		if _, err := db.InsertEvent(Event{SubscriptionID: "s", Channel: "c", Timestamp: ts, Payload: "true"}); err != nil {
			t.Fatalf("InsertEvent(ts=%d): %v", ts, err)
		}
	}

	// One subscription ended before the cutoff, one after, one still live.
	subs := []Subscription{
		{ID: "old", Channel: "c", Capability: "supported", StartTime: 10, EndTime: oldTs},
		{ID: "new", Channel: "c", Capability: "supported", StartTime: 10, EndTime: newTs},
		{ID: "live", Channel: "c", Capability: "supported", StartTime: 10},
	}
	for _, s := range subs {
		if err := db.InsertSubscription(s); err != nil {
			t.Fatalf("InsertSubscription(%s): %v", s.ID, err)
		}
	}

	deleted, err := db.DeleteOlderThan(cutoffTs)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 2 {
		t.Fatalf("DeleteOlderThan() deleted = %d, want 2 (one old row per table)", deleted)
	}

	if got := countRows(t, db, "events"); got != 2 {
		t.Fatalf("events row count after cleanup = %d, want 2 (cutoff+new)", got)
	}
	if got := countRows(t, db, "subscriptions"); got != 2 {
		t.Fatalf("subscriptions row count after cleanup = %d, want 2 (new+live)", got)
	}
}

func TestRunRetention(t *testing.T) {
	db := openTestDB(t)

	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	recent := time.Now().UnixMilli()
	for _, ts := range []int64{old, recent} {
		if _, err := db.InsertEvent(Event{SubscriptionID: "s", Channel: "c", Timestamp: ts, Payload: "1"}); err != nil {
			t.Fatalf("InsertEvent(ts=%d): %v", ts, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		db.RunRetention(ctx, 24*time.Hour, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for countRows(t, db, "events") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("retention did not prune the old event")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}
