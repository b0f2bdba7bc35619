package main

import (
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pixil98/go-testutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDBSettings(t *testing.T) {
	db := openTestDB(t)

	testutil.AssertEqual(t, "unset", db.GetSetting("missing"), "")
	if err := db.SetSetting("k", "one"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting("k", "two"); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, "value", db.GetSetting("k"), "two")
}

func TestJournalPersistsEvents(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db, JournalConfig{Path: "unused", BufferSize: 64, FlushInterval: "10ms"})

	sink := j.Sink("s1")
	sink.Record(Event{Type: EvtTransition, NeedleID: "n1", From: "loaded", To: "firing"})
	sink.Record(Event{Type: EvtFired, NeedleID: "n1", Position: mgl64.Vec3{1, 2, 3}, Time: 0.5})
	sink.Record(Event{Type: EvtStuck, NeedleID: "n1", EntityID: "wall"})
	j.Track("s2", Event{Type: EvtFired, NeedleID: "n9"})
	j.Close()
	j.Close()

	rows, err := j.Recent("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, "rows", len(rows), 3)
	testutil.AssertEqual(t, "newest first", rows[0].Type, EvtStuck)
	testutil.AssertEqual(t, "entity", rows[0].EntityID, "wall")
	testutil.AssertEqual(t, "fired x", rows[1].X, 1.0)
	testutil.AssertEqual(t, "fired z", rows[1].Z, 3.0)
	testutil.AssertEqual(t, "sim time", rows[1].SimTime, 0.5)
	testutil.AssertEqual(t, "to state", rows[2].ToState, "firing")
	if rows[0].CreatedAt.IsZero() {
		t.Error("expected a creation time")
	}

	all, err := j.Recent("", 10)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, "all sessions", len(all), 4)

	limited, err := j.Recent("", 2)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, "limited", len(limited), 2)

	counts, err := j.Counts("")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, "fired count", counts[EvtFired], 2)
	testutil.AssertEqual(t, "stuck count", counts[EvtStuck], 1)

	counts, err = j.Counts("s2")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, "s2 types", len(counts), 1)
}

func TestJournalDropsWhenFull(t *testing.T) {
	// No writer draining the buffer
	j := &Journal{events: make(chan EventRow, 1)}
	j.Track("s", Event{Type: EvtFired})
	j.Track("s", Event{Type: EvtFired})
	j.Track("s", Event{Type: EvtFired})
	testutil.AssertEqual(t, "dropped", j.Dropped(), 2)
}

func TestNilJournalSink(t *testing.T) {
	var j *Journal
	if j.Sink("s") != nil {
		t.Error("expected nil sink from a nil journal")
	}
	// MultiSink skips it
	if got := MultiSink(j.Sink("s")); len(got.(multiSink)) != 0 {
		t.Error("expected empty fan-out")
	}
}
