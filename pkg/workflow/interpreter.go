package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/use-agent/workflowrunner/internal/abort"
	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/cache"
	"github.com/use-agent/workflowrunner/internal/concurrency"
	"github.com/use-agent/workflowrunner/internal/dispatch"
	"github.com/use-agent/workflowrunner/internal/inpage"
	"github.com/use-agent/workflowrunner/internal/ratelimit"
	"github.com/use-agent/workflowrunner/internal/reqctx"
	"github.com/use-agent/workflowrunner/internal/results"
	"github.com/use-agent/workflowrunner/internal/selector"
)

// MatchPolicy selects how C6 picks the rule to carry out on a given
// iteration.
type MatchPolicy int

const (
	// MatchPolicyTail always carries out the last rule remaining in the
	// workflow copy. This is the current, default policy.
	MatchPolicyTail MatchPolicy = iota
	// MatchPolicyApplicable scans last-to-first for the first rule whose
	// where clause is satisfied by the current PageState. Exported for
	// callers who want the historical matching behavior; not the default.
	// See DESIGN.md's "match policy divergence" open question.
	MatchPolicyApplicable
)

const (
	maxIterations         = 1000
	waitLoadTimeout       = 15 * time.Second
	defaultMaxRepeats     = 5
	defaultMaxConcurrency = 5
	selectorProbeTimeout  = 2 * time.Second
)

// DebugChannel is the optional set of observer hooks a caller can supply to
// watch a run progress without consuming the serializable callback.
type DebugChannel struct {
	ActiveID                 func(ruleID string)
	DebugMessage             func(msg string)
	SetActionType            func(action string)
	SetActionName            func(name string)
	IncrementScrapeListIndex func()
	ProgressUpdate           func(executed, total int)
}

// Options configures an Interpreter, mirroring the constructor inputs of
// spec.md §6.
type Options struct {
	MaxRepeats     int
	MaxConcurrency int
	Mode           string // "" | "editor"
	Debug          bool
	Policy         MatchPolicy

	// Cache memoizes scrapeSchema extraction results within a run. Optional.
	Cache cache.Cache
	// RateLimiter throttles crawl/search HTTP-equivalent navigations by
	// host. Optional; nil means unthrottled.
	RateLimiter ratelimit.RateLimiter

	SerializableCallback func(results.Snapshot)
	BinaryCallback       func(name string, data []byte, mimeType string)
	DebugChannel         *DebugChannel
}

func (o Options) withDefaults() Options {
	if o.MaxRepeats <= 0 {
		o.MaxRepeats = defaultMaxRepeats
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = defaultMaxConcurrency
	}
	return o
}

// Interpreter is the public rule-matching runtime (C6): it owns one
// workflow's lifecycle across however many pages a run opens.
type Interpreter struct {
	wf   WorkflowFile
	opts Options

	mu        sync.Mutex
	running   bool
	stopped   bool
	abortFlag abort.Flag

	pool      *concurrency.Pool
	agg       *results.Aggregator
	iterCount int64
}

// New creates an Interpreter bound to wf, applying Options defaults
// (maxRepeats=5, maxConcurrency=5).
func New(wf WorkflowFile, opts Options) *Interpreter {
	opts = opts.withDefaults()
	return &Interpreter{
		wf:   wf,
		opts: opts,
		pool: concurrency.New(opts.MaxConcurrency),
		agg:  results.New(),
	}
}

// Run starts the rule-matching loop on driver, substituting params into
// every action's args, and blocks until the workflow copy is exhausted,
// the run is aborted/stopped, or the circuit breaker trips. It returns the
// final result snapshot.
func (in *Interpreter) Run(ctx context.Context, driver browserdriver.Driver, params map[string]any) (results.Snapshot, error) {
	ctx = reqctx.WithRequestContext(ctx)
	runID := reqctx.GetRequestContext(ctx).RequestID

	in.mu.Lock()
	in.running = true
	in.stopped = false
	in.mu.Unlock()

	rules := cloneWorkflow(in.wf, params)

	log.Debug().Str("run_id", runID).Int("rules", len(rules)).Msg("run starting")

	if err := inpage.EnsureInjected(ctx, driver); err != nil {
		log.Warn().Str("run_id", runID).Err(err).Msg("in-page script injection failed, continuing best-effort")
	}

	in.runLoop(ctx, driver, rules, nil)

	in.pool.WaitForCompletion()

	snap := in.agg.Snapshot()
	if in.opts.SerializableCallback != nil {
		in.opts.SerializableCallback(snap)
	}

	in.mu.Lock()
	in.running = false
	in.mu.Unlock()

	return snap, nil
}

// runLoop drives one page's copy of the workflow to completion, returning
// the used-action id trail. It is the body both the top-level Run call and
// every popup/enqueued-page re-entry share.
func (in *Interpreter) runLoop(ctx context.Context, driver browserdriver.Driver, rules []Rule, usedActions []string) []string {
	lastRuleID := ""
	repeatCount := 0

	// A popup inherits whichever rules remain for this page at the moment
	// it opens, per the "same workflow copy" contract; rules is captured
	// by reference here, not copied, so later splicing is visible to the
	// handler.
	driver.OnPopup(func(popup browserdriver.Driver) {
		in.pool.AddJob(func() {
			in.runLoop(ctx, popup, append([]Rule(nil), rules...), nil)
		})
	})

	deps := &dispatch.Deps{
		Pool:           poolAdapter{in.pool},
		Results:        in.agg,
		Mode:           in.opts.Mode,
		BinaryCallback: in.opts.BinaryCallback,
		FlagCallback:   in.flagCallback,
		Abort:          &in.abortFlag,
		Cache:          in.opts.Cache,
		RateLimiter:    in.opts.RateLimiter,
		Reenter: func(page browserdriver.Driver) {
			in.pool.AddJob(func() {
				in.runLoop(ctx, page, append([]Rule(nil), rules...), nil)
			})
		},
	}

	for {
		if in.abortFlag.IsSet() || in.isStopped() || driver.IsClosed() {
			return usedActions
		}

		if err := driver.WaitForSelector(ctx, "body", browserdriver.WaitVisible, waitLoadTimeout); err != nil {
			log.Debug().Err(err).Msg("waitForLoadState failed, ending this page's loop")
			_ = driver.Close(ctx)
			return usedActions
		}

		if len(rules) == 0 {
			return usedActions
		}

		idx := in.selectRule(ctx, driver, rules, usedActions)
		if idx < 0 {
			return usedActions
		}
		rule := rules[idx]

		in.reportProgress(rule.ID, len(rules))

		for _, action := range rule.What {
			step := dispatch.Step{Action: action.Action, Args: action.Args, Name: action.Name}
			if err := dispatch.Dispatch(ctx, driver, step, deps); err != nil {
				log.Warn().Err(reqctx.NewRequestError(ctx, err)).Str("action", action.Action).Str("rule", rule.ID).Msg("action failed, continuing")
			}
			time.Sleep(dispatch.Pacing)
		}

		usedActions = append(usedActions, rule.ID)
		rules = append(append([]Rule(nil), rules[:idx]...), rules[idx+1:]...)

		if rule.ID != "" && rule.ID == lastRuleID {
			repeatCount++
		} else {
			repeatCount = 1
			lastRuleID = rule.ID
		}
		// Terminates immediately after the maxRepeats-th consecutive
		// carry-out of the same rule id, so a (maxRepeats+1)-th never runs.
		if rule.ID != "" && repeatCount >= in.opts.MaxRepeats {
			return usedActions
		}

		if atomic.AddInt64(&in.iterCount, 1) >= maxIterations {
			return usedActions
		}
	}
}

// selectRule implements the two named match policies: MatchPolicyTail
// (default) always returns the last rule's index; MatchPolicyApplicable
// scans last-to-first for the first rule whose where clause is satisfied,
// returning -1 if none match.
func (in *Interpreter) selectRule(ctx context.Context, driver browserdriver.Driver, rules []Rule, usedActions []string) int {
	if in.opts.Policy == MatchPolicyApplicable {
		state := readPageState(ctx, driver, rules)
		for i := len(rules) - 1; i >= 0; i-- {
			if rules[i].Where.Applicable(state, usedActions) {
				return i
			}
		}
		return -1
	}

	return len(rules) - 1
}

// readPageState reads URL, cookies, and the presence of every selector
// named across rules' where.selectors clauses. Only selectors actually
// found on the page are added to state.Selectors, matching
// selectorsSubset's "at least one listed selector is present" contract.
func readPageState(ctx context.Context, driver browserdriver.Driver, rules []Rule) PageState {
	state := PageState{URL: driver.URL(), Cookies: map[string]string{}, Selectors: map[string]struct{}{}}
	cookies, err := driver.Cookies(ctx, nil)
	if err != nil {
		return state
	}
	for _, c := range cookies {
		state.Cookies[c.Name] = c.Value
	}

	wanted := make(map[string]struct{})
	for _, r := range rules {
		r.Where.collectSelectors(wanted)
	}
	for sel := range wanted {
		if selectorPresent(ctx, driver, sel) {
			state.Selectors[sel] = struct{}{}
		}
	}

	return state
}

// selectorPresent probes sel for presence without blocking on visibility:
// shadow/frame-piercing selectors resolve through the in-page library,
// everything else through a plain querySelector check.
func selectorPresent(ctx context.Context, driver browserdriver.Driver, sel string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, selectorProbeTimeout)
	defer cancel()

	if selector.IsInPageOnly(sel) {
		found, err := inpage.FindElement(probeCtx, driver, sel)
		return err == nil && found
	}

	var found bool
	expr := fmt.Sprintf("function(){ return document.querySelector(%q) !== null; }", sel)
	if err := driver.Evaluate(probeCtx, expr, nil, &found); err != nil {
		return false
	}
	return found
}

func (in *Interpreter) flagCallback(page browserdriver.Driver, resume func()) {
	if in.opts.DebugChannel != nil && in.opts.DebugChannel.DebugMessage != nil {
		in.opts.DebugChannel.DebugMessage("flag action reached, awaiting resume")
	}
	resume()
}

func (in *Interpreter) reportProgress(ruleID string, remaining int) {
	if in.opts.DebugChannel == nil {
		return
	}
	if in.opts.DebugChannel.ActiveID != nil {
		in.opts.DebugChannel.ActiveID(ruleID)
	}
	if in.opts.DebugChannel.ProgressUpdate != nil {
		in.opts.DebugChannel.ProgressUpdate(int(atomic.LoadInt64(&in.iterCount)), remaining)
	}
}

func (in *Interpreter) isStopped() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stopped
}

// Stop requests a clean shutdown of the active run without discarding
// accumulated results; the loop exits at its next iteration head.
func (in *Interpreter) Stop() {
	in.mu.Lock()
	in.stopped = true
	in.mu.Unlock()
}

// Abort sets the cooperative cancellation flag; every loop head,
// pagination iteration, and long-running action handler polls it.
func (in *Interpreter) Abort() {
	in.abortFlag.Set()
}

// GetIsAborted reports whether Abort has been called on this run.
func (in *Interpreter) GetIsAborted() bool {
	return in.abortFlag.IsSet()
}

// Cleanup stops an active run, clears accumulated results, and resets the
// abort flag, per the cleanup contract of spec.md §5.
func (in *Interpreter) Cleanup() {
	in.Stop()
	in.agg.Clear()
	in.abortFlag.Reset()
}

// poolAdapter satisfies dispatch.Scheduler over internal/concurrency.Pool.
type poolAdapter struct{ pool *concurrency.Pool }

func (p poolAdapter) AddJob(f func()) { p.pool.AddJob(f) }
