package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/use-agent/workflowrunner/internal/browserdriver"
)

// SearchConfig mirrors the search(cfg) action argument.
type SearchConfig struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"` // "" (results only) | "scrape" (visit each hit)
	Limit int     `json:"limit,omitempty"`
}

// SearchHit is one DuckDuckGo result-page entry.
type SearchHit struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Position    int    `json:"position"`
}

const duckDuckGoResultSelector = "a.result__a"
const duckDuckGoMoreResultsSelector = ".result--more__btn, #more-results"

// runSearch drives a DuckDuckGo HTML results page, paginating via "More
// results" until cfg.Limit hits are collected, and optionally visits each
// hit to extract full page content.
func runSearch(ctx context.Context, d browserdriver.Driver, cfg SearchConfig, deps *Deps) ([]map[string]any, error) {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 10
	}

	searchURL := "https://duckduckgo.com/html/?q=" + url.QueryEscape(cfg.Query)
	if err := d.Navigate(ctx, searchURL, "load", 30*time.Second); err != nil {
		return nil, err
	}

	var hits []SearchHit
	position := 0

	for len(hits) < limit {
		var page []SearchHit
		expr := fmt.Sprintf(`function(){
			var out = [];
			document.querySelectorAll(%q).forEach(function(a){
				var row = a.closest('.result');
				var desc = row ? row.querySelector('.result__snippet') : null;
				out.push({
					url: a.href,
					title: (a.innerText || '').trim(),
					description: desc ? (desc.innerText || '').trim() : ''
				});
			});
			return out;
		}`, duckDuckGoResultSelector)

		if err := d.Evaluate(ctx, expr, nil, &page); err != nil {
			break
		}

		for _, h := range page {
			if len(hits) >= limit {
				break
			}
			position++
			h.Position = position
			hits = append(hits, h)
		}

		if len(hits) >= limit {
			break
		}

		if err := d.WaitForSelector(ctx, duckDuckGoMoreResultsSelector, browserdriver.WaitVisible, 3*time.Second); err != nil {
			break
		}
		if err := d.Click(ctx, duckDuckGoMoreResultsSelector, browserdriver.ClickOptions{}); err != nil {
			break
		}
		time.Sleep(1 * time.Second)
	}

	if cfg.Mode != "scrape" {
		return hitRows(hits), nil
	}

	recs := make([]PageRecord, 0, len(hits))
	for _, h := range hits {
		if deps != nil && deps.RateLimiter != nil {
			if err := deps.RateLimiter.Wait(ctx, h.URL); err != nil {
				break
			}
		}
		rec, err := visitPage(ctx, d, h.URL)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return marshalRecords(recs), nil
}

func hitRows(hits []SearchHit) []map[string]any {
	out := make([]map[string]any, len(hits))
	for i, h := range hits {
		out[i] = map[string]any{
			"url":         h.URL,
			"title":       h.Title,
			"description": h.Description,
			"position":    h.Position,
		}
	}
	return out
}
