package events_test

import (
	"context"
	"testing"
	"time"

	"writline/internal/db"
	"writline/internal/events"
	"writline/internal/migrate"
)

func newWriter(t *testing.T) events.Writer {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return events.Writer{DB: conn, Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }}
}

func TestAppendAndTail(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()
	for _, typ := range []string{"case.created", "proceeding.saved", "proceeding.saved"} {
		if err := w.Append(ctx, events.Event{Type: typ, SessionID: "s1", FIRID: "fir-1", EntityKind: "proceeding", Payload: events.EventPayload{"draft": true}}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	if err := w.Append(ctx, events.Event{Type: "case.created", FIRID: "fir-2", EntityKind: "fir", Outcome: "failed"}); err != nil {
		t.Fatal(err)
	}

	all, err := w.Tail(ctx, 10, events.Filter{})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	if all[0].FIRID != "fir-2" || all[0].Outcome != "failed" {
		t.Fatalf("expected newest first, got %+v", all[0])
	}
	if all[1].Payload["draft"] != true {
		t.Fatalf("payload not decoded: %+v", all[1].Payload)
	}
	if all[1].TS != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected ts %s", all[1].TS)
	}

	saved, err := w.Tail(ctx, 10, events.Filter{Type: "proceeding.saved", FIRID: "fir-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 filtered events, got %d", len(saved))
	}
	limited, err := w.Tail(ctx, 1, events.Filter{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(context.Background(), db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(ctx, conn); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	v, err := migrate.Version(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if v != latest || v != 2 {
		t.Fatalf("expected version %d, got %d", latest, v)
	}
}
