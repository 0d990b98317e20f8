// Package pagination implements the generic paginated-list extractor: the
// scroll, click-next, and click-load-more strategies over a container of
// rows, with duplicate suppression, selector healing, and bounded
// termination.
package pagination

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/use-agent/workflowrunner/internal/abort"
	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/inpage"
	"github.com/use-agent/workflowrunner/internal/results"
	"github.com/use-agent/workflowrunner/internal/selector"
)

// Strategy identifies one of the pagination drive modes.
type Strategy string

const (
	StrategyScrollDown    Strategy = "scrollDown"
	StrategyScrollUp      Strategy = "scrollUp"
	StrategyClickNext     Strategy = "clickNext"
	StrategyClickLoadMore Strategy = "clickLoadMore"
)

// Per-page constants from the pagination budget.
const (
	MaxRetries          = 3
	RetryDelay          = 1 * time.Second
	MaxUnchangedResults = 5
	MaxButtonSearchTime = 15 * time.Second
	MaxNoNewItems       = 5
	EvalTimeout         = 10 * time.Second
)

// Settings is the {type, selector} pagination directive; selector may list
// comma-separated candidate selectors for clickNext/clickLoadMore.
type Settings struct {
	Type     Strategy `json:"type"`
	Selector string   `json:"selector,omitempty"`
}

// Config is the full scrapeList-with-pagination argument.
type Config struct {
	ListSelector string                    `json:"listSelector"`
	Fields       map[string]inpage.Field   `json:"fields"`
	Limit        int                       `json:"limit,omitempty"`
	Pagination   *Settings                 `json:"pagination,omitempty"`
}

// OnPage is invoked with the full deduplicated aggregate after every page
// is processed, mirroring the "consumer callback receives the current
// aggregate after each page" contract.
type OnPage func(rows []results.Record)

// Run drives pagination per cfg.Pagination.Type (or a single extraction if
// cfg.Pagination is nil) and returns the final deduplicated, limit-capped
// aggregate.
func Run(ctx context.Context, d browserdriver.Driver, cfg Config, onPage OnPage, af *abort.Flag) ([]results.Record, error) {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 1 << 30
	}

	if cfg.Pagination == nil {
		rows, err := extract(ctx, d, cfg)
		if err != nil {
			return nil, err
		}
		rows = capAt(rows, limit)
		if onPage != nil {
			onPage(rows)
		}
		return rows, nil
	}

	switch cfg.Pagination.Type {
	case StrategyScrollDown:
		return runScroll(ctx, d, cfg, onPage, af, true)
	case StrategyScrollUp:
		return runScroll(ctx, d, cfg, onPage, af, false)
	case StrategyClickNext:
		return runClickNext(ctx, d, cfg, onPage, af)
	case StrategyClickLoadMore:
		return runClickLoadMore(ctx, d, cfg, onPage, af)
	default:
		rows, err := extract(ctx, d, cfg)
		if err != nil {
			return nil, err
		}
		rows = capAt(rows, limit)
		if onPage != nil {
			onPage(rows)
		}
		return rows, nil
	}
}

func extract(ctx context.Context, d browserdriver.Driver, cfg Config) ([]results.Record, error) {
	evalCtx, cancel := context.WithTimeout(ctx, EvalTimeout)
	defer cancel()

	rows, err := inpage.ScrapeList(evalCtx, d, inpage.ListConfig{
		ListSelector: cfg.ListSelector,
		Fields:       cfg.Fields,
		Limit:        cfg.Limit,
	})
	if err != nil {
		// EvaluationTimeout policy: return empty result for this page and
		// let the caller's loop decide whether to continue.
		log.Warn().Err(err).Msg("scrapeList evaluation failed, returning empty page")
		return nil, nil
	}

	out := make([]results.Record, len(rows))
	for i, r := range rows {
		out[i] = results.Record(r)
	}
	return out, nil
}

func capAt(rows []results.Record, limit int) []results.Record {
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// dedupAppend appends rows not already present (by JSON-stringify
// equality) in existing, returning the grown slice and whether anything
// new was added.
func dedupAppend(existing []results.Record, rows []results.Record, seen map[string]struct{}) ([]results.Record, bool) {
	grew := false
	for _, r := range rows {
		key := stringify(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, r)
		grew = true
	}
	return existing, grew
}

func stringify(r results.Record) string {
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}

// candidateSelector pairs a raw pagination-button selector with its
// classified dialect, so findWorkingButton/clickWithNavigationRace can
// choose between the host driver's plain CSS path and the in-page
// library's shadow/frame-piercing traversal before touching the selector.
type candidateSelector struct {
	raw     string
	dialect selector.Dialect
}

func (c candidateSelector) pierced() bool {
	return selector.IsInPageOnly(c.raw)
}

func candidateSelectors(raw string) []candidateSelector {
	parts := strings.Split(raw, ",")
	out := make([]candidateSelector, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, candidateSelector{raw: p, dialect: selector.Classify(p)})
	}
	return out
}
