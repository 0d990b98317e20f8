package inpage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/inpage"
)

// newPage launches a headless Chrome page against server and injects the
// in-page script library, the same real-browser-over-httptest pattern the
// browser driver's own teacher file uses for its fetch tests.
func newPage(t *testing.T, server *httptest.Server) (context.Context, browserdriver.Driver, func()) {
	t.Helper()

	pool, err := browserdriver.NewPool(browserdriver.PoolOptions{Headless: true})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	d, err := pool.NewPage(ctx)
	if err != nil {
		cancel()
		pool.Close()
		t.Fatalf("NewPage: %v", err)
	}

	if err := d.Navigate(ctx, server.URL, "networkidle", 15*time.Second); err != nil {
		cancel()
		pool.Close()
		t.Fatalf("Navigate: %v", err)
	}
	if err := inpage.EnsureInjected(ctx, d); err != nil {
		cancel()
		pool.Close()
		t.Fatalf("EnsureInjected: %v", err)
	}

	return ctx, d, func() {
		d.Close(ctx)
		cancel()
		pool.Close()
	}
}

func serveHTML(html string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(html))
	}))
}

func TestScrapeReturnsFlattenedRecords(t *testing.T) {
	server := serveHTML(`<!DOCTYPE html><html><body>
		<ul class="items">
			<li class="card"><span>Alpha</span></li>
			<li class="card"><span>Bravo</span></li>
		</ul>
	</body></html>`)
	defer server.Close()

	ctx, d, done := newPage(t, server)
	defer done()

	rows, err := inpage.Scrape(ctx, d, ".card")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestScrapeSchemaGroupsByMinimalBoundingElement(t *testing.T) {
	// S5: two seed matches under distinct ancestors group title/price pairs
	// independently rather than bleeding fields across rows.
	server := serveHTML(`<!DOCTYPE html><html><body>
		<div class="product">
			<h2 class="title">Widget</h2>
			<span class="price">$9</span>
		</div>
		<div class="product">
			<h2 class="title">Gadget</h2>
			<span class="price">$19</span>
		</div>
	</body></html>`)
	defer server.Close()

	ctx, d, done := newPage(t, server)
	defer done()

	schema := map[string]inpage.Field{
		"title": {Selector: ".title", Attribute: "innerText"},
		"price": {Selector: ".price", Attribute: "innerText"},
	}
	rows, err := inpage.ScrapeSchema(ctx, d, schema)
	if err != nil {
		t.Fatalf("ScrapeSchema: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 grouped rows, got %d: %v", len(rows), rows)
	}
	if rows[0]["title"] != "Widget" || rows[0]["price"] != "$9" {
		t.Errorf("first row mismatched its own product's fields: %v", rows[0])
	}
	if rows[1]["title"] != "Gadget" || rows[1]["price"] != "$19" {
		t.Errorf("second row mismatched its own product's fields: %v", rows[1])
	}
}

func TestScrapeListClassifiesTableRows(t *testing.T) {
	// S6: a <table> list selector routes fields through the table
	// cell-index path rather than the non-table relative-selector path.
	server := serveHTML(`<!DOCTYPE html><html><body>
		<table class="grid">
			<tr><th>Name</th><th>Qty</th></tr>
			<tr><td class="name">Bolt</td><td class="qty">4</td></tr>
			<tr><td class="name">Nut</td><td class="qty">8</td></tr>
		</table>
	</body></html>`)
	defer server.Close()

	ctx, d, done := newPage(t, server)
	defer done()

	cfg := inpage.ListConfig{
		ListSelector: ".grid",
		Fields: map[string]inpage.Field{
			"name": {Selector: ".name", Attribute: "innerText"},
			"qty":  {Selector: ".qty", Attribute: "innerText"},
		},
	}
	rows, err := inpage.ScrapeList(ctx, d, cfg)
	if err != nil {
		t.Fatalf("ScrapeList: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 data rows (header excluded), got %d: %v", len(rows), rows)
	}
	if rows[0]["name"] != "Bolt" || rows[0]["qty"] != "4" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
}

func TestScrapeListAutoDumpsChildSelectors(t *testing.T) {
	server := serveHTML(`<!DOCTYPE html><html><body>
		<div id="list">
			<div>First</div>
			<div>Second</div>
		</div>
	</body></html>`)
	defer server.Close()

	ctx, d, done := newPage(t, server)
	defer done()

	rows, err := inpage.ScrapeListAuto(ctx, d, "#list")
	if err != nil {
		t.Fatalf("ScrapeListAuto: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].InnerText != "First" || rows[1].InnerText != "Second" {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if rows[0].Selector == "" {
		t.Error("expected a non-empty css path for the first child")
	}
}

func TestScrapeHeuristicsFindsRepeatedCollection(t *testing.T) {
	server := serveHTML(`<!DOCTYPE html><html><body>
		<header><div>Not part of the list</div></header>
		<div class="row"><span>One</span></div>
		<div class="row"><span>Two</span></div>
		<div class="row"><span>Three</span></div>
	</body></html>`)
	defer server.Close()

	ctx, d, done := newPage(t, server)
	defer done()

	rows, err := inpage.ScrapeHeuristics(ctx, d)
	if err != nil {
		t.Fatalf("ScrapeHeuristics: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected the 3-element .row group to win, got %d rows", len(rows))
	}
}

func TestFindAndClickElementResolveShadowPiercingSelector(t *testing.T) {
	// S5/S6 boundary: a button inside an open shadow root is invisible to
	// the host driver's plain querySelector and must resolve through
	// findAllElements's shadow-piercing traversal instead.
	server := serveHTML(`<!DOCTYPE html><html><body>
		<div id="host"></div>
		<script>
			var host = document.getElementById('host');
			var root = host.attachShadow({mode: 'open'});
			var btn = document.createElement('button');
			btn.className = 'next';
			btn.textContent = 'Next';
			btn.addEventListener('click', function(){ btn.setAttribute('data-clicked', 'true'); });
			root.appendChild(btn);
		</script>
	</body></html>`)
	defer server.Close()

	ctx, d, done := newPage(t, server)
	defer done()

	sel := "#host >> .next"

	found, err := inpage.FindElement(ctx, d, sel)
	if err != nil {
		t.Fatalf("FindElement: %v", err)
	}
	if !found {
		t.Fatal("expected the shadow-piercing selector to resolve the button")
	}

	if err := inpage.ClickElement(ctx, d, sel); err != nil {
		t.Fatalf("ClickElement: %v", err)
	}

	var clicked bool
	expr := `function(){ return document.getElementById('host').shadowRoot.querySelector('.next').getAttribute('data-clicked') === 'true'; }`
	if err := d.Evaluate(ctx, expr, nil, &clicked); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !clicked {
		t.Error("expected the shadow-hosted button's click handler to have fired")
	}
}
