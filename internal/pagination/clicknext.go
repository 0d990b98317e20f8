package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/use-agent/workflowrunner/internal/abort"
	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/inpage"
	"github.com/use-agent/workflowrunner/internal/results"
	"github.com/use-agent/workflowrunner/internal/retry"
)

// contentSignature is the cheap before/after fingerprint clickNext uses to
// decide whether a click actually advanced the list.
type contentSignature struct {
	url       string
	itemCount int
	firstText string
}

func signatureOf(d browserdriver.Driver, rows []results.Record) contentSignature {
	text := ""
	for i, r := range rows {
		if i >= 3 {
			break
		}
		text += stringify(r)
	}
	return contentSignature{url: d.URL(), itemCount: len(rows), firstText: text}
}

// runClickNext implements the clickNext strategy (S3): selector healing
// over candidate button selectors, a content-signature comparison to
// detect whether a click actually advanced the page, and the
// history-forward fallback when every candidate is exhausted.
func runClickNext(ctx context.Context, d browserdriver.Driver, cfg Config, onPage OnPage, af *abort.Flag) ([]results.Record, error) {
	limit := effectiveLimit(cfg.Limit)
	var aggregate []results.Record
	seen := make(map[string]struct{})

	visited := map[string]struct{}{d.URL(): {}}
	candidates := candidateSelectors(cfg.Pagination.Selector)
	healedOut := make(map[string]struct{})

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

	for {
		if af != nil && af.IsSet() {
			return aggregate, nil
		}

		button, ok := findWorkingButton(ctx, d, candidates, healedOut)
		if !ok {
			if advanced := tryHistoryForward(ctx, d, visited); !advanced {
				return aggregate, nil
			}
			visited[d.URL()] = struct{}{}
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
			continue
		}

		before := signatureOf(d, rows)
		advanced := clickWithNavigationRace(ctx, d, button)
		if !advanced {
			return aggregate, nil
		}

		rows, err = extract(ctx, d, cfg)
		if err != nil {
			return aggregate, err
		}
		after := signatureOf(d, rows)

		if after.url == before.url && after.firstText == before.firstText && after.itemCount == before.itemCount {
			// Click dispatched but nothing changed: treat as exhausted.
			return aggregate, nil
		}

		visited[after.url] = struct{}{}
		aggregate, _ = dedupAppend(aggregate, rows, seen)
		if onPage != nil {
			onPage(aggregate)
		}
		if len(aggregate) >= limit {
			return capAt(aggregate, limit), nil
		}
	}
}

// findWorkingButton probes candidates in order, retrying each up to
// MaxRetries times with a 2s wait, permanently healing out any candidate
// that never resolves within the global MaxButtonSearchTime budget. A
// shadow/frame-piercing candidate is probed through the in-page library
// (internal/inpage) instead of the host driver's plain-CSS WaitForSelector,
// since the latter cannot resolve piercing selectors at all.
func findWorkingButton(ctx context.Context, d browserdriver.Driver, candidates []candidateSelector, healedOut map[string]struct{}) (candidateSelector, bool) {
	deadline := time.Now().Add(MaxButtonSearchTime)

	for _, cs := range candidates {
		if _, healed := healedOut[cs.raw]; healed {
			continue
		}
		if time.Now().After(deadline) {
			return candidateSelector{}, false
		}

		ok := false
		for attempt := 0; attempt < MaxRetries; attempt++ {
			if cs.pierced() {
				waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				found, err := inpage.FindElement(waitCtx, d, cs.raw)
				cancel()
				if err == nil && found {
					ok = true
					break
				}
			} else {
				waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				err := d.WaitForSelector(waitCtx, cs.raw, browserdriver.WaitVisible, 2*time.Second)
				cancel()
				if err == nil {
					ok = true
					break
				}
			}
			if time.Now().After(deadline) {
				break
			}
		}

		if ok {
			return cs, true
		}
		healedOut[cs.raw] = struct{}{}
		log.Debug().Str("selector", cs.raw).Str("dialect", string(cs.dialect)).Msg("pagination candidate selector healed out")
	}

	return candidateSelector{}, false
}

func tryHistoryForward(ctx context.Context, d browserdriver.Driver, visited map[string]struct{}) bool {
	var ok bool
	_ = d.Evaluate(ctx, "function(){ window.history.forward(); return true; }", nil, &ok)
	time.Sleep(500 * time.Millisecond)
	_, unvisited := visited[d.URL()]
	return !unvisited
}

// clickWithNavigationRace performs the click, falling back to a forced
// click when the plain click fails, up to MaxRetries outer retries. It does
// not wait for or race against a navigation; the caller's content-signature
// comparison decides whether the page advanced. A piercing selector is
// clicked through the in-page library since the host driver's Click only
// resolves plain CSS.
func clickWithNavigationRace(ctx context.Context, d browserdriver.Driver, cs candidateSelector) bool {
	err := retry.WithRetry(ctx, retry.Config{
		MaxAttempts:    MaxRetries,
		InitialBackoff: RetryDelay,
		MaxBackoff:     MaxButtonSearchTime,
		Multiplier:     2.0,
	}, func() error {
		navCtx, cancel := context.WithTimeout(ctx, MaxButtonSearchTime)
		defer cancel()

		if cs.pierced() {
			return inpage.ClickElement(navCtx, d, cs.raw)
		}

		if err := d.Click(navCtx, cs.raw, browserdriver.ClickOptions{}); err != nil {
			// Dispatch-event fallback: force the click through.
			if ferr := d.Click(navCtx, cs.raw, browserdriver.ClickOptions{Force: true}); ferr != nil {
				return fmt.Errorf("click and forced click both failed: %w", ferr)
			}
		}
		return nil
	})
	return err == nil
}
