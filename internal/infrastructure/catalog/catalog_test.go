// ABOUTME: Tests for the SQLite and in-memory station catalogs
// ABOUTME: Verifies creation, lookup, navigation order, and seeding
package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/harper/radiod/internal/domain"
)

func openSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "radio.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func catalogs(t *testing.T) map[string]domain.Catalog {
	return map[string]domain.Catalog{
		"sqlite": openSQLite(t),
		"memory": NewMemory(),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogs(t) {
		st, err := c.Create(ctx, "Jazz FM", "https://jazz.example", []string{"http://a/1", "http://a/2"})
		if err != nil {
			t.Fatalf("%s: Create failed: %v", name, err)
		}

		got, err := c.Get(ctx, st.ID)
		if err != nil {
			t.Fatalf("%s: Get failed: %v", name, err)
		}
		if got.Title != "Jazz FM" || got.URL != "https://jazz.example" {
			t.Errorf("%s: unexpected station %+v", name, got)
		}
		if src, _ := got.PrimarySource(); src != "http://a/1" {
			t.Errorf("%s: expected primary source http://a/1, got %q", name, src)
		}
		if len(got.Sources) != 2 {
			t.Errorf("%s: expected 2 sources, got %d", name, len(got.Sources))
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	for name, c := range catalogs(t) {
		if _, err := c.Get(context.Background(), 42); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestRandom_Empty(t *testing.T) {
	for name, c := range catalogs(t) {
		if _, err := c.Random(context.Background()); !errors.Is(err, domain.ErrNoStations) {
			t.Errorf("%s: expected ErrNoStations, got %v", name, err)
		}
	}
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogs(t) {
		a, _ := c.Create(ctx, "A", "", []string{"a"})
		b, _ := c.Create(ctx, "B", "", []string{"b"})
		cc, _ := c.Create(ctx, "C", "", []string{"c"})

		next, err := c.Next(ctx, a)
		if err != nil || next == nil || next.ID != b.ID {
			t.Errorf("%s: expected next of A to be B, got %v (%v)", name, next, err)
		}

		prev, err := c.Previous(ctx, cc)
		if err != nil || prev == nil || prev.ID != b.ID {
			t.Errorf("%s: expected previous of C to be B, got %v (%v)", name, prev, err)
		}

		if end, err := c.Next(ctx, cc); err != nil || end != nil {
			t.Errorf("%s: expected no next after C, got %v (%v)", name, end, err)
		}
		if start, err := c.Previous(ctx, a); err != nil || start != nil {
			t.Errorf("%s: expected no previous before A, got %v (%v)", name, start, err)
		}

		r, err := c.Random(ctx)
		if err != nil {
			t.Fatalf("%s: Random failed: %v", name, err)
		}
		if r.ID != a.ID && r.ID != b.ID && r.ID != cc.ID {
			t.Errorf("%s: Random returned unknown station %v", name, r)
		}
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogs(t) {
		c.Create(ctx, "A", "", []string{"a1", "a2"})
		c.Create(ctx, "B", "", nil)

		list, err := c.List(ctx)
		if err != nil {
			t.Fatalf("%s: List failed: %v", name, err)
		}
		if len(list) != 2 {
			t.Fatalf("%s: expected 2 stations, got %d", name, len(list))
		}
		if list[0].Title != "A" || len(list[0].Sources) != 2 {
			t.Errorf("%s: unexpected first station %+v", name, list[0])
		}
		if len(list[1].Sources) != 0 {
			t.Errorf("%s: expected no sources for B, got %v", name, list[1].Sources)
		}
	}
}

func TestSeed_SkipsExistingTitles(t *testing.T) {
	ctx := context.Background()
	entries := []Entry{
		{Title: "A", Sources: []string{"a"}},
		{Title: "B", Sources: []string{"b"}},
	}

	for name, c := range catalogs(t) {
		added, err := Seed(ctx, c, entries)
		if err != nil {
			t.Fatalf("%s: Seed failed: %v", name, err)
		}
		if added != 2 {
			t.Errorf("%s: expected 2 added, got %d", name, added)
		}

		added, err = Seed(ctx, c, append(entries, Entry{Title: "C", Sources: []string{"c"}}))
		if err != nil {
			t.Fatalf("%s: second Seed failed: %v", name, err)
		}
		if added != 1 {
			t.Errorf("%s: expected 1 added on reseed, got %d", name, added)
		}
	}
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radio.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	db.Create(context.Background(), "Persisted", "", []string{"p"})
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	list, _ := db.List(context.Background())
	if len(list) != 1 || list[0].Title != "Persisted" {
		t.Errorf("expected persisted station, got %v", list)
	}
}
