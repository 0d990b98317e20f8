package pagination

import (
	"context"
	"time"

	"github.com/use-agent/workflowrunner/internal/abort"
	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/inpage"
	"github.com/use-agent/workflowrunner/internal/results"
)

// runScroll implements the scrollDown/scrollUp strategy (S4): extract,
// scroll to the extreme, wait, and compare document height and result
// count against the previous iteration.
func runScroll(ctx context.Context, d browserdriver.Driver, cfg Config, onPage OnPage, af *abort.Flag, down bool) ([]results.Record, error) {
	limit := effectiveLimit(cfg.Limit)
	var aggregate []results.Record
	seen := make(map[string]struct{})

	var prevHeight float64 = -1
	unchangedCount := 0

	for {
		if af != nil && af.IsSet() {
			return aggregate, nil
		}

		rows, err := extract(ctx, d, cfg)
		if err != nil {
			return aggregate, err
		}
		before := len(aggregate)
		aggregate, _ = dedupAppend(aggregate, rows, seen)
		if len(aggregate) >= limit {
			aggregate = capAt(aggregate, limit)
			if onPage != nil {
				onPage(aggregate)
			}
			return aggregate, nil
		}
		grew := len(aggregate) > before

		var height float64
		if down {
			height, err = inpage.ScrollDown(ctx, d)
		} else {
			height, err = inpage.ScrollUp(ctx, d)
		}
		if err != nil {
			return aggregate, nil
		}

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return aggregate, nil
		}

		if onPage != nil {
			onPage(aggregate)
		}

		if !grew {
			unchangedCount++
		} else {
			unchangedCount = 0
		}

		heightUnchanged := prevHeight >= 0 && height == prevHeight
		prevHeight = height

		if unchangedCount >= MaxUnchangedResults || heightUnchanged {
			return aggregate, nil
		}
	}
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return 1 << 30
	}
	return limit
}
