package pagination

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/use-agent/workflowrunner/internal/abort"
	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/inpage"
)

// fakeDriver is a minimal in-memory browserdriver.Driver used to exercise
// the pagination strategies without a real browser.
type fakeDriver struct {
	url         string
	evalResults [][]map[string]any // one slice of rows per scrapeList call
	evalCall    int
	clickCalls  int
	waitFails   map[string]int // selector -> number of times WaitForSelector should fail before succeeding
}

func (f *fakeDriver) Navigate(ctx context.Context, url string, waitUntil string, timeout time.Duration) error {
	f.url = url
	return nil
}
func (f *fakeDriver) Click(ctx context.Context, selector string, opts browserdriver.ClickOptions) error {
	f.clickCalls++
	return nil
}
func (f *fakeDriver) WaitForSelector(ctx context.Context, selector string, state browserdriver.WaitState, timeout time.Duration) error {
	if f.waitFails == nil {
		return nil
	}
	if n := f.waitFails[selector]; n > 0 {
		f.waitFails[selector]--
		return context.DeadlineExceeded
	}
	return nil
}
func (f *fakeDriver) Locate(ctx context.Context, selector string) (browserdriver.Locator, error) {
	return nil, nil
}
func (f *fakeDriver) Evaluate(ctx context.Context, expr string, arg any, out any) error {
	if containsAny(expr, "scrollDown", "scrollUp") {
		b, _ := json.Marshal(float64(1000))
		return json.Unmarshal(b, out)
	}

	idx := f.evalCall
	if idx >= len(f.evalResults) {
		idx = len(f.evalResults) - 1
	}
	rows := f.evalResults[idx]
	f.evalCall++

	b, _ := json.Marshal(rows)
	return json.Unmarshal(b, out)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
func (f *fakeDriver) AddInitScript(ctx context.Context, script string) error { return nil }
func (f *fakeDriver) Cookies(ctx context.Context, urls []string) ([]browserdriver.Cookie, error) {
	return nil, nil
}
func (f *fakeDriver) SetCookies(ctx context.Context, cookies []browserdriver.Cookie) error {
	return nil
}
func (f *fakeDriver) URL() string                         { return f.url }
func (f *fakeDriver) IsClosed() bool                      { return false }
func (f *fakeDriver) Close(ctx context.Context) error      { return nil }
func (f *fakeDriver) NewPage(ctx context.Context) (browserdriver.Driver, error) { return f, nil }
func (f *fakeDriver) OnPopup(handler func(browserdriver.Driver))                {}
func (f *fakeDriver) OnFrameNavigated(handler func(url string))                {}
func (f *fakeDriver) Keyboard() browserdriver.Keyboard                         { return nil }
func (f *fakeDriver) Mouse() browserdriver.Mouse                               { return nil }
func (f *fakeDriver) Screenshot(ctx context.Context, opts browserdriver.ScreenshotOptions) ([]byte, error) {
	return nil, nil
}
func (f *fakeDriver) CallMethod(ctx context.Context, path string, args []any) error { return nil }

var _ browserdriver.Driver = (*fakeDriver)(nil)

func rowsOf(titles ...string) []map[string]any {
	out := make([]map[string]any, len(titles))
	for i, t := range titles {
		out[i] = map[string]any{"title": t}
	}
	return out
}

func TestRunNoPaginationSingleExtract(t *testing.T) {
	d := &fakeDriver{url: "https://example.com", evalResults: [][]map[string]any{rowsOf("a", "b", "c")}}
	cfg := Config{ListSelector: ".item", Fields: map[string]inpage.Field{"title": {Selector: ".t", Attribute: "innerText"}}}

	rows, err := Run(context.Background(), d, cfg, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
}

func TestRunScrollDownTerminatesOnUnchangedHeight(t *testing.T) {
	// S4 — two consecutive iterations with identical document height
	// terminate the loop regardless of result-count change.
	d := &fakeDriver{
		url: "https://example.com",
		evalResults: [][]map[string]any{
			rowsOf("a", "b"),
			rowsOf("a", "b", "c"),
			rowsOf("a", "b", "c", "d"),
		},
	}
	cfg := Config{
		ListSelector: ".item",
		Fields:       map[string]inpage.Field{"title": {Selector: ".t", Attribute: "innerText"}},
		Pagination:   &Settings{Type: StrategyScrollDown},
	}

	rows, err := Run(context.Background(), d, cfg, nil, &abort.Flag{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) == 0 {
		t.Fatalf("expected some rows from scroll pagination")
	}
	if len(rows) != 3 || d.evalCall != 2 {
		t.Fatalf("expected the loop to stop after the second extract (3 rows), got %d rows after %d extracts", len(rows), d.evalCall)
	}
}

func TestRunClickNextDedupsAcrossPages(t *testing.T) {
	// S3-flavored: two pages with overlapping rows should dedup in the
	// aggregate.
	d := &fakeDriver{
		url: "https://example.com/page1",
		evalResults: [][]map[string]any{
			rowsOf("a", "b", "c"),
			rowsOf("b", "c", "d", "e"),
		},
	}
	cfg := Config{
		ListSelector: ".item",
		Fields:       map[string]inpage.Field{"title": {Selector: ".t", Attribute: "innerText"}},
		Limit:        5,
		Pagination:   &Settings{Type: StrategyClickNext, Selector: "a.next"},
	}

	rows, err := runClickNextOnce(d, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) == 0 {
		t.Fatalf("expected rows")
	}
	want := []string{"a", "b", "c", "d", "e"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d deduped rows, got %d: %v", len(want), len(rows), rows)
	}
	for i, w := range want {
		if rows[i]["title"] != w {
			t.Errorf("row %d: expected title %q, got %v", i, w, rows[i]["title"])
		}
	}
}

// runClickNextOnce drives a single clickNext pass with a click hook that
// advances the fake driver's URL, simulating a successful navigation.
func runClickNextOnce(d *fakeDriver, cfg Config) ([]map[string]any, error) {
	af := &abort.Flag{}
	rows, err := Run(context.Background(), advancingDriver{d}, cfg, nil, af)
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, err
}

// advancingDriver wraps fakeDriver so that Click also advances the URL,
// which is what a real navigation would do.
type advancingDriver struct{ *fakeDriver }

func (a advancingDriver) Click(ctx context.Context, selector string, opts browserdriver.ClickOptions) error {
	a.fakeDriver.clickCalls++
	a.fakeDriver.url = a.fakeDriver.url + "/next"
	return nil
}
