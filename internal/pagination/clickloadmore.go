package pagination

import (
	"context"
	"time"

	"github.com/use-agent/workflowrunner/internal/abort"
	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/inpage"
	"github.com/use-agent/workflowrunner/internal/results"
)

// runClickLoadMore implements the clickLoadMore strategy: the same
// selector-healing and retry discipline as clickNext, but progress is
// judged by new rows appearing and by the document height changing after
// the scroll, rather than by a URL/content-signature comparison.
func runClickLoadMore(ctx context.Context, d browserdriver.Driver, cfg Config, onPage OnPage, af *abort.Flag) ([]results.Record, error) {
	limit := effectiveLimit(cfg.Limit)
	var aggregate []results.Record
	seen := make(map[string]struct{})

	candidates := candidateSelectors(cfg.Pagination.Selector)
	healedOut := make(map[string]struct{})
	noNewItems := 0

	rows, err := extract(ctx, d, cfg)
	if err != nil {
		return aggregate, err
	}
	aggregate, _ = dedupAppend(aggregate, rows, seen)
	if onPage != nil {
		onPage(aggregate)
	}
	if len(aggregate) >= limit {
		return capAt(aggregate, limit), nil
	}

	var prevHeight float64 = -1

	for {
		if af != nil && af.IsSet() {
			return aggregate, nil
		}

		button, ok := findWorkingButton(ctx, d, candidates, healedOut)
		if !ok {
			return aggregate, nil
		}

		if !clickWithNavigationRace(ctx, d, button) {
			return aggregate, nil
		}

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return aggregate, nil
		}

		height, _ := inpage.ScrollDown(ctx, d)

		rows, err := extract(ctx, d, cfg)
		if err != nil {
			return aggregate, err
		}
		before := len(aggregate)
		aggregate, _ = dedupAppend(aggregate, rows, seen)
		grew := len(aggregate) > before

		if onPage != nil {
			onPage(aggregate)
		}
		if len(aggregate) >= limit {
			return capAt(aggregate, limit), nil
		}

		if prevHeight >= 0 && height == prevHeight {
			return aggregate, nil
		}
		prevHeight = height

		if !grew {
			noNewItems++
			if noNewItems >= MaxNoNewItems {
				return aggregate, nil
			}
		} else {
			noNewItems = 0
		}
	}
}
