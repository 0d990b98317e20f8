package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/use-agent/workflowrunner/internal/results"
)

// SaveCSV writes one named capture's rows to a CSV file. Headers are the
// union of keys across all rows, sorted for a stable column order; a row
// missing a key writes an empty cell.
func SaveCSV(rows []results.Record, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if len(rows) == 0 {
		return writer.Write([]string{})
	}

	headerSet := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			headerSet[k] = struct{}{}
		}
	}
	headers := make([]string, 0, len(headerSet))
	for h := range headerSet {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	if err := writer.Write(headers); err != nil {
		return err
	}

	for _, row := range rows {
		out := make([]string, len(headers))
		for i, h := range headers {
			out[i] = stringifyCell(row[h])
		}
		if err := writer.Write(out); err != nil {
			return err
		}
	}
	return nil
}

func stringifyCell(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
