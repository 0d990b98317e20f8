package output

import (
	"encoding/json"
	"os"

	"github.com/use-agent/workflowrunner/internal/results"
)

// SaveJSON writes the full result snapshot as indented JSON to filepath.
func SaveJSON(snap results.Snapshot, filepath string) error {
	content, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, content, 0644)
}
