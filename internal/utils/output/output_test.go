package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/use-agent/workflowrunner/internal/results"
)

func TestSaveJSONWritesSnapshot(t *testing.T) {
	snap := results.Snapshot{
		results.KindScrapeList: {
			"List 1": {{"title": "a"}, {"title": "b"}},
		},
	}

	path := filepath.Join(t.TempDir(), "out.json")
	if err := SaveJSON(snap, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got results.Snapshot
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got[results.KindScrapeList]["List 1"]) != 2 {
		t.Errorf("expected 2 rows, got %d", len(got[results.KindScrapeList]["List 1"]))
	}
}

func TestSaveCSVUsesSortedUnionHeaders(t *testing.T) {
	rows := []results.Record{
		{"title": "first", "price": "10"},
		{"title": "second"},
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := SaveCSV(rows, path); err != nil {
		t.Fatalf("SaveCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if records[0][0] != "price" || records[0][1] != "title" {
		t.Errorf("expected sorted headers [price title], got %v", records[0])
	}
	if records[2][0] != "" {
		t.Errorf("expected empty cell for missing price, got %q", records[2][0])
	}
}

func TestSaveCSVEmptyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := SaveCSV(nil, path); err != nil {
		t.Fatalf("SaveCSV: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}

func TestSaveMarkdownConvertsHTMLPerRow(t *testing.T) {
	rows := []results.Record{
		{"url": "https://example.com/a", "title": "Page A", "html": "<html><body><h1>Hi</h1></body></html>"},
	}

	path := filepath.Join(t.TempDir(), "out.md")
	if err := SaveMarkdown(rows, path); err != nil {
		t.Fatalf("SaveMarkdown: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "# Page A") {
		t.Errorf("expected title heading in output, got %q", content)
	}
	if !strings.Contains(content, "Source: https://example.com/a") {
		t.Errorf("expected source line, got %q", content)
	}
	if !strings.Contains(content, "# Hi") {
		t.Errorf("expected converted h1 markdown, got %q", content)
	}
}

func TestCleanHTMLStripsScripts(t *testing.T) {
	cleaned, err := CleanHTML(`<html><body><script>evil()</script><p>hi</p></body></html>`)
	if err != nil {
		t.Fatalf("CleanHTML: %v", err)
	}
	if strings.Contains(cleaned, "script") {
		t.Errorf("expected script tag removed, got %q", cleaned)
	}
	if !strings.Contains(cleaned, "hi") {
		t.Errorf("expected body text preserved, got %q", cleaned)
	}
}
