package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/workflowrunner/internal/results"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"city=austin", "zip=78701"})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if params["city"] != "austin" || params["zip"] != "78701" {
		t.Errorf("unexpected params: %+v", params)
	}
}

func TestParseParamsRejectsMissingEquals(t *testing.T) {
	if _, err := parseParams([]string{"nokey"}); err == nil {
		t.Error("expected error for param without '='")
	}
}

func TestParseParamsEmpty(t *testing.T) {
	params, err := parseParams(nil)
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if params != nil {
		t.Errorf("expected nil params, got %+v", params)
	}
}

func TestFlattenRows(t *testing.T) {
	snap := results.Snapshot{
		results.KindScrapeList: {
			"a": {{"x": 1}},
			"b": {{"x": 2}, {"x": 3}},
		},
	}
	rows := flattenRows(snap)
	if len(rows) != 3 {
		t.Errorf("expected 3 flattened rows, got %d", len(rows))
	}
}

func TestEmitSnapshotDefaultsToJSONExtension(t *testing.T) {
	snap := results.Snapshot{
		results.KindScrapeSchema: {"page": {{"title": "hi"}}},
	}
	path := filepath.Join(t.TempDir(), "out.unknown")
	if err := emitSnapshot(snap, path); err != nil {
		t.Fatalf("emitSnapshot: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got results.Snapshot
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got[results.KindScrapeSchema]["page"]) != 1 {
		t.Errorf("unexpected snapshot contents: %+v", got)
	}
}
