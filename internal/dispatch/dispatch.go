// Package dispatch implements the Action Dispatcher (C5): executing a
// single "what" step, either a reserved built-in or a dotted
// browser-driver method call, as one match statement with no reflection.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/use-agent/workflowrunner/internal/abort"
	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/cache"
	"github.com/use-agent/workflowrunner/internal/inpage"
	"github.com/use-agent/workflowrunner/internal/pagination"
	"github.com/use-agent/workflowrunner/internal/ratelimit"
	"github.com/use-agent/workflowrunner/internal/results"
	"github.com/use-agent/workflowrunner/internal/werrors"
)

// Step is one dispatch-ready action: a built-in name or dotted method path,
// its raw JSON arguments, and the optional user-assigned result name.
type Step struct {
	Action string
	Args   json.RawMessage
	Name   string
}

// Pacing is the fixed per-step delay the spec mandates after every action.
const Pacing = 500 * time.Millisecond

// ReentryFunc re-enters the rule-matching loop on a freshly opened page,
// sharing the caller's already-mutated workflow copy. Supplied by the
// interpreter to break the C5<->C6 dependency cycle.
type ReentryFunc func(d browserdriver.Driver)

// Deps bundles everything a single Dispatch call needs beyond the page
// driver itself.
type Deps struct {
	Pool           Scheduler
	Results        *results.Aggregator
	Mode           string // "editor" short-circuits scrapeSchema/scrapeList
	BinaryCallback func(name string, data []byte, mimeType string)
	FlagCallback   func(d browserdriver.Driver, resume func())
	Reenter        ReentryFunc
	Abort          *abort.Flag
	Cache          cache.Cache        // optional; nil disables extraction memoization
	RateLimiter    ratelimit.RateLimiter // optional; nil disables crawl/search throttling
}

func (d *Deps) cacheGet(key string) ([]map[string]any, bool) {
	if d.Cache == nil {
		return nil, false
	}
	return d.Cache.Get(key)
}

func (d *Deps) cacheSet(key string, rows []map[string]any) {
	if d.Cache == nil {
		return
	}
	_ = d.Cache.Set(key, rows, 0)
}

func schemaFingerprint(schema map[string]inpage.Field) string {
	b, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(b)
}

// Scheduler is the subset of internal/concurrency.Pool dispatch needs,
// kept as an interface so this package does not import concurrency
// directly for every call site (tests can supply a synchronous stub).
type Scheduler interface {
	AddJob(f func())
}

// Dispatch executes one step against d and returns any error. Callers are
// responsible for the 500ms pacing delay and for logging ActionFailed
// (soft failure: log and continue) per the error-handling policy.
func Dispatch(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	switch step.Action {
	case "screenshot":
		return dispatchScreenshot(ctx, d, step, deps)
	case "enqueueLinks":
		return dispatchEnqueueLinks(ctx, d, step, deps)
	case "scrape":
		return dispatchScrape(ctx, d, step, deps)
	case "scrapeSchema":
		return dispatchScrapeSchema(ctx, d, step, deps)
	case "scrapeList":
		return dispatchScrapeList(ctx, d, step, deps)
	case "scrapeListAuto":
		return dispatchScrapeListAuto(ctx, d, step, deps)
	case "scroll":
		return dispatchScroll(ctx, d, step)
	case "script":
		return dispatchScript(ctx, d, step)
	case "crawl":
		return dispatchCrawl(ctx, d, step, deps)
	case "search":
		return dispatchSearch(ctx, d, step, deps)
	case "flag":
		return dispatchFlag(d, deps)
	default:
		return dispatchDriverMethod(ctx, d, step)
	}
}

func dispatchScreenshot(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	var args struct {
		Opts browserdriver.ScreenshotOptions `json:"opts"`
	}
	_ = json.Unmarshal(step.Args, &args)

	data, err := d.Screenshot(ctx, args.Opts)
	if err != nil {
		return werrors.New(werrors.CodeActionFailed, "screenshot", err)
	}

	name := step.Name
	if name == "" {
		name = deps.Results.AutoName("screenshot")
	}
	if deps.BinaryCallback != nil {
		deps.BinaryCallback(name, data, "image/png")
	}
	return nil
}

func dispatchEnqueueLinks(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	var selector string
	_ = json.Unmarshal(step.Args, &selector)
	if selector == "" {
		selector = "a[href]"
	}

	var hrefs []string
	expr := fmt.Sprintf(`function(){ return Array.prototype.map.call(document.querySelectorAll(%q), function(a){ return a.href; }); }`, selector)
	if err := d.Evaluate(ctx, expr, nil, &hrefs); err != nil {
		return werrors.New(werrors.CodeActionFailed, "enqueueLinks: evaluate anchors", err)
	}

	for _, href := range hrefs {
		url := href
		if deps.Pool != nil {
			deps.Pool.AddJob(func() {
				page, err := d.NewPage(ctx)
				if err != nil {
					log.Warn().Err(err).Str("url", url).Msg("enqueueLinks: failed to open page")
					return
				}
				if err := page.Navigate(ctx, url, "networkidle", 30*time.Second); err != nil {
					log.Warn().Err(err).Str("url", url).Msg("enqueueLinks: navigation failed")
					return
				}
				if deps.Reenter != nil {
					deps.Reenter(page)
				}
			})
		}
	}

	return nil
}

func dispatchScrape(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	var sel string
	_ = json.Unmarshal(step.Args, &sel)

	rows, err := inpage.Scrape(ctx, d, sel)
	if err != nil {
		return werrors.New(werrors.CodeActionFailed, "scrape", err)
	}

	name := step.Name
	if name == "" {
		name = deps.Results.AutoName(results.KindScrapeList)
	}
	deps.Results.Push(results.KindScrapeList, name, toRecords(rows))
	return nil
}

func dispatchScrapeSchema(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	if deps.Mode == "editor" {
		return nil
	}

	var schema map[string]inpage.Field
	if err := json.Unmarshal(step.Args, &schema); err != nil {
		return werrors.New(werrors.CodeValidation, "scrapeSchema args", err)
	}

	cacheKey := cache.KeyFor(d.URL(), "scrapeSchema", schemaFingerprint(schema))
	rows, cached := deps.cacheGet(cacheKey)
	if !cached {
		var err error
		rows, err = inpage.ScrapeSchema(ctx, d, schema)
		if err != nil {
			return werrors.New(werrors.CodeActionFailed, "scrapeSchema", err)
		}
		deps.cacheSet(cacheKey, rows)
	}

	name := step.Name
	if name == "" {
		name = deps.Results.AutoName(results.KindScrapeSchema)
	}
	deps.Results.Push(results.KindScrapeSchema, name, toRecords(rows))
	return nil
}

func dispatchScrapeList(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	if deps.Mode == "editor" {
		return nil
	}

	var cfg pagination.Config
	if err := json.Unmarshal(step.Args, &cfg); err != nil {
		return werrors.New(werrors.CodeValidation, "scrapeList args", err)
	}

	name := step.Name
	if name == "" {
		name = deps.Results.AutoName(results.KindScrapeList)
	}

	if _, err := pagination.Run(ctx, d, cfg, func(page []results.Record) {
		deps.Results.Push(results.KindScrapeList, name, page)
	}, deps.Abort); err != nil {
		return werrors.New(werrors.CodeActionFailed, "scrapeList", err)
	}
	return nil
}

func dispatchScrapeListAuto(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	var cfg struct {
		ListSelector string `json:"listSelector"`
	}
	if err := json.Unmarshal(step.Args, &cfg); err != nil {
		return werrors.New(werrors.CodeValidation, "scrapeListAuto args", err)
	}

	rows, err := inpage.ScrapeListAuto(ctx, d, cfg.ListSelector)
	if err != nil {
		return werrors.New(werrors.CodeActionFailed, "scrapeListAuto", err)
	}

	name := step.Name
	if name == "" {
		name = deps.Results.AutoName(results.KindScrapeList)
	}

	out := make([]results.Record, len(rows))
	for i, r := range rows {
		out[i] = results.Record{"selector": r.Selector, "innerText": r.InnerText}
	}
	deps.Results.Push(results.KindScrapeList, name, out)
	return nil
}

func dispatchScroll(ctx context.Context, d browserdriver.Driver, step Step) error {
	args := struct {
		Pages float64 `json:"pages"`
	}{Pages: 1}
	if len(step.Args) > 0 {
		_ = json.Unmarshal(step.Args, &args)
	}
	if args.Pages == 0 {
		args.Pages = 1
	}

	expr := fmt.Sprintf("function(){ window.scrollBy(0, window.innerHeight * %g); return true; }", args.Pages)
	var ok bool
	if err := d.Evaluate(ctx, expr, nil, &ok); err != nil {
		return werrors.New(werrors.CodeActionFailed, "scroll", err)
	}
	return nil
}

func dispatchScript(ctx context.Context, d browserdriver.Driver, step Step) error {
	var code string
	_ = json.Unmarshal(step.Args, &code)
	if err := runScript(ctx, d, code); err != nil {
		return werrors.New(werrors.CodeActionFailed, "script", err)
	}
	return nil
}

func dispatchCrawl(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	var cfg CrawlConfig
	if err := json.Unmarshal(step.Args, &cfg); err != nil {
		return werrors.New(werrors.CodeValidation, "crawl args", err)
	}

	urls := discoverURLs(ctx, d, cfg)
	recs := make([]PageRecord, 0, len(urls))
	for _, u := range urls {
		if deps.RateLimiter != nil {
			if err := deps.RateLimiter.Wait(ctx, u); err != nil {
				log.Warn().Err(err).Str("url", u).Msg("crawl: rate limit wait cancelled")
				break
			}
		}
		rec, err := visitPage(ctx, d, u)
		if err != nil {
			log.Warn().Err(err).Str("url", u).Msg("crawl: visit failed, skipping")
			continue
		}
		recs = append(recs, rec)
	}

	name := step.Name
	if name == "" {
		name = deps.Results.AutoName(results.KindCrawl)
	}
	deps.Results.Push(results.KindCrawl, name, toRecords(marshalRecords(recs)))
	return nil
}

func dispatchSearch(ctx context.Context, d browserdriver.Driver, step Step, deps *Deps) error {
	var cfg SearchConfig
	if err := json.Unmarshal(step.Args, &cfg); err != nil {
		return werrors.New(werrors.CodeValidation, "search args", err)
	}

	rows, err := runSearch(ctx, d, cfg, deps)
	if err != nil {
		return werrors.New(werrors.CodeActionFailed, "search", err)
	}

	name := step.Name
	if name == "" {
		name = deps.Results.AutoName(results.KindSearch)
	}
	deps.Results.Push(results.KindSearch, name, toRecords(rows))
	return nil
}

func dispatchFlag(d browserdriver.Driver, deps *Deps) error {
	if deps.FlagCallback == nil {
		return nil
	}
	resumed := make(chan struct{})
	deps.FlagCallback(d, func() { close(resumed) })
	<-resumed
	return nil
}

// dispatchDriverMethod resolves "a.b.c" against the driver, per the dotted
// dispatch contract: click retries once with force:true,
// waitForLoadState retries with domcontentloaded, press/type receive at
// most two positional args, all other failures log and skip.
func dispatchDriverMethod(ctx context.Context, d browserdriver.Driver, step Step) error {
	var args []any
	if len(step.Args) > 0 {
		_ = json.Unmarshal(step.Args, &args)
	}

	path := step.Action

	if path == "click" || strings.HasSuffix(path, ".click") {
		sel, _ := firstString(args)
		if err := d.Click(ctx, sel, browserdriver.ClickOptions{}); err != nil {
			if err2 := d.Click(ctx, sel, browserdriver.ClickOptions{Force: true}); err2 != nil {
				log.Error().Err(err2).Str("action", path).Msg("dispatched action failed")
				return nil
			}
		}
		return nil
	}

	if path == "waitForLoadState" {
		if err := d.WaitForSelector(ctx, "body", browserdriver.WaitVisible, 10*time.Second); err != nil {
			log.Warn().Err(err).Msg("waitForLoadState failed, retrying with domcontentloaded")
			if err2 := d.WaitForSelector(ctx, "html", browserdriver.WaitAttached, 10*time.Second); err2 != nil {
				log.Error().Err(err2).Msg("waitForLoadState retry failed")
			}
		}
		return nil
	}

	if len(args) > 2 {
		args = args[:2]
	}

	if err := d.CallMethod(ctx, path, args); err != nil {
		log.Error().Err(err).Str("action", path).Msg("dispatched action failed")
	}
	return nil
}

func firstString(args []any) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	s, ok := args[0].(string)
	return s, ok
}

func toRecords(rows []map[string]any) []results.Record {
	out := make([]results.Record, len(rows))
	for i, r := range rows {
		out[i] = results.Record(r)
	}
	return out
}
