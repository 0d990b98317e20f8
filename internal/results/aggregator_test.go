package results

import "testing"

func TestScrapeSchemaRowSplit(t *testing.T) {
	// S1 — scrapeSchema row-split.
	a := New()
	a.Push(KindScrapeSchema, "Texts", []Record{{"a": "1", "b": "2"}})
	a.Push(KindScrapeSchema, "Texts", []Record{{"a": "3"}})

	rows := a.Snapshot()[KindScrapeSchema]["Texts"]
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(rows), rows)
	}
	if rows[0]["a"] != "1" || rows[0]["b"] != "2" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1]["a"] != "3" {
		t.Errorf("unexpected second row: %v", rows[1])
	}
}

func TestScrapeSchemaKeyUnion(t *testing.T) {
	// S2 — scrapeSchema key-union.
	a := New()
	a.Push(KindScrapeSchema, "Texts", []Record{{"a": "1"}})
	a.Push(KindScrapeSchema, "Texts", []Record{{"b": "2"}})

	rows := a.Snapshot()[KindScrapeSchema]["Texts"]
	if len(rows) != 1 {
		t.Fatalf("expected 1 merged row, got %d: %v", len(rows), rows)
	}
	if rows[0]["a"] != "1" || rows[0]["b"] != "2" {
		t.Errorf("unexpected merged row: %v", rows[0])
	}
}

func TestScrapeListDedup(t *testing.T) {
	a := New()
	a.Push(KindScrapeList, "List 1", []Record{{"title": "x"}, {"title": "y"}})
	a.Push(KindScrapeList, "List 1", []Record{{"title": "y"}, {"title": "z"}})

	rows := a.Snapshot()[KindScrapeList]["List 1"]
	if len(rows) != 3 {
		t.Fatalf("expected 3 deduped rows, got %d: %v", len(rows), rows)
	}
}

func TestAutoName(t *testing.T) {
	a := New()
	if got := a.AutoName(KindScrapeList); got != "List 1" {
		t.Errorf("expected 'List 1', got %q", got)
	}
	if got := a.AutoName(KindScrapeList); got != "List 2" {
		t.Errorf("expected 'List 2', got %q", got)
	}
}

func TestClearResetsState(t *testing.T) {
	a := New()
	a.Push(KindScrapeList, "List 1", []Record{{"title": "x"}})
	a.Clear()

	if len(a.Snapshot()) != 0 {
		t.Errorf("expected empty snapshot after Clear")
	}
}
