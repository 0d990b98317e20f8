// Package inpage embeds the DOM-side script library and exposes typed Go
// entry points around it. The heuristics themselves — MBE grouping,
// table/non-table classification, class-similarity expansion, selector
// dialect resolution — live in script.js and execute inside the page;
// this package is pure plumbing.
package inpage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/werrors"
)

//go:embed script.js
var librarySource string

// ProbeTimeout bounds the presence probe for an already-injected library,
// per the 3s ScriptInjectionTimeout budget.
const ProbeTimeout = 3 * time.Second

// EvaluateTimeout bounds in-page evaluate calls.
const EvaluateTimeout = 10 * time.Second

// Source returns the embedded script library text, for callers that need
// to inject it directly (e.g. tests exercising a real browser).
func Source() string {
	return librarySource
}

// EnsureInjected registers the library as an init script for future
// navigations and, best-effort, defines it on the current document too so
// callers can use it immediately without a reload. Probe failures are
// logged by the caller as ScriptInjectionTimeout and do not block
// injection: addInitScript is attempted regardless.
func EnsureInjected(ctx context.Context, d browserdriver.Driver) error {
	probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	var present bool
	_ = d.Evaluate(probeCtx, "function(){ return typeof window.scrape === 'function'; }", nil, &present)

	if err := d.AddInitScript(ctx, librarySource); err != nil {
		return werrors.New(werrors.CodeScriptInjectTimeout, "inject in-page script library", err)
	}

	if !present {
		// Best-effort immediate definition for the current document; a
		// failure here just means the library activates on next navigation.
		_ = d.Evaluate(ctx, fmt.Sprintf("function(){ %s; return true; }", librarySource), nil, new(bool))
	}

	return nil
}

// Field describes one schema/list field: the selector to find it with, the
// attribute to extract, and whether it should be resolved through an open
// shadow root.
type Field struct {
	Selector  string `json:"selector"`
	Attribute string `json:"attribute"`
	Shadow    bool   `json:"shadow,omitempty"`
}

// ListConfig mirrors the scrapeList({listSelector, fields, limit}) argument.
type ListConfig struct {
	ListSelector string           `json:"listSelector"`
	Fields       map[string]Field `json:"fields"`
	Limit        int              `json:"limit,omitempty"`
}

// AutoRow is one entry of scrapeListAuto's result.
type AutoRow struct {
	Selector  string `json:"selector"`
	InnerText string `json:"innerText"`
}

// Scrape runs the selector-less or selector-scoped flattened-record
// extraction.
func Scrape(ctx context.Context, d browserdriver.Driver, sel string) ([]map[string]any, error) {
	var out []map[string]any
	expr := fmt.Sprintf("function(){ return scrape(%s); }", jsonArg(sel))
	if err := evalTimed(ctx, d, expr, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ScrapeSchema runs the MBE-grouped schema extraction.
func ScrapeSchema(ctx context.Context, d browserdriver.Driver, schema map[string]Field) ([]map[string]any, error) {
	var out []map[string]any
	expr := "function(schema){ return scrapeSchema(schema); }"
	if err := evalTimed(ctx, d, expr, schema, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ScrapeList runs the table/non-table mixed list extraction.
func ScrapeList(ctx context.Context, d browserdriver.Driver, cfg ListConfig) ([]map[string]any, error) {
	var out []map[string]any
	expr := "function(cfg){ return scrapeList(cfg); }"
	if err := evalTimed(ctx, d, expr, cfg, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ScrapeListAuto runs the per-child selector/text dump.
func ScrapeListAuto(ctx context.Context, d browserdriver.Driver, listSelector string) ([]AutoRow, error) {
	var out []AutoRow
	expr := fmt.Sprintf("function(){ return scrapeListAuto(%s); }", jsonArg(listSelector))
	if err := evalTimed(ctx, d, expr, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ScrapeHeuristics runs the fingerprint-based list-discovery heuristic
// directly, independent of scrape()'s selector-less shortcut.
func ScrapeHeuristics(ctx context.Context, d browserdriver.Driver) ([]map[string]any, error) {
	var out []map[string]any
	if err := evalTimed(ctx, d, "function(){ return scrapeHeuristics(); }", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ScrollDown scrolls the viewport to the bottom of the document and
// returns the resulting document height.
func ScrollDown(ctx context.Context, d browserdriver.Driver) (float64, error) {
	var height float64
	if err := evalTimed(ctx, d, "function(){ return scrollDown(); }", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// ScrollUp scrolls the viewport to the top of the document.
func ScrollUp(ctx context.Context, d browserdriver.Driver) (float64, error) {
	var height float64
	if err := evalTimed(ctx, d, "function(){ return scrollUp(); }", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// FindElement reports whether at least one element matches sel, resolved
// through the in-page library's selector traversal (__wfFindAllElements)
// rather than the host driver's plain CSS querySelector. Used for
// shadow/frame-piercing selectors the host side cannot locate on its own.
func FindElement(ctx context.Context, d browserdriver.Driver, sel string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("function(){ return __wfFindAllElements(%s).length > 0; }", jsonArg(sel))
	if err := evalTimed(ctx, d, expr, nil, &found); err != nil {
		return false, err
	}
	return found, nil
}

// ClickElement clicks the first element matching a shadow/frame-piercing
// selector, resolved the same way FindElement resolves presence.
func ClickElement(ctx context.Context, d browserdriver.Driver, sel string) error {
	var ok bool
	expr := fmt.Sprintf(`function(){
		var els = __wfFindAllElements(%s);
		if (!els.length) return false;
		els[0].click();
		return true;
	}`, jsonArg(sel))
	if err := evalTimed(ctx, d, expr, nil, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("click %q: no element matched", sel)
	}
	return nil
}

func evalTimed(ctx context.Context, d browserdriver.Driver, expr string, arg any, out any) error {
	evalCtx, cancel := context.WithTimeout(ctx, EvaluateTimeout)
	defer cancel()

	if err := d.Evaluate(evalCtx, expr, arg, out); err != nil {
		return werrors.New(werrors.CodeEvaluationTimeout, "in-page evaluate", err)
	}
	return nil
}

func jsonArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
