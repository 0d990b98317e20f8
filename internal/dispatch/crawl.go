package dispatch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/workflowrunner/internal/browserdriver"
	urlutil "github.com/use-agent/workflowrunner/internal/utils/url"
)

// CrawlConfig mirrors the crawl(cfg) action argument.
type CrawlConfig struct {
	Sitemap string   `json:"sitemap,omitempty"`
	Mode    string   `json:"mode,omitempty"` // domain | subdomain | path
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// PageRecord is one crawl/search visit result.
type PageRecord struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Text        string            `json:"text"`
	HTML        string            `json:"html"`
	Links       []string          `json:"links"`
	Metadata    map[string]string `json:"metadata"`
	WordCount   int               `json:"wordCount"`
}

type sitemapURLSet struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []sitemapURL  `xml:"url"`
}
type sitemapURL struct {
	Loc string `xml:"loc"`
}

func fetchSitemapURLs(sitemapURL string) []string {
	client := http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(sitemapURL)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil
	}

	out := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if u.Loc != "" {
			out = append(out, u.Loc)
		}
	}
	return out
}

func currentPageAnchors(ctx context.Context, d browserdriver.Driver) []string {
	var hrefs []string
	expr := "function(){ return Array.prototype.map.call(document.querySelectorAll('a[href]'), function(a){ return a.getAttribute('href'); }); }"
	_ = d.Evaluate(ctx, expr, nil, &hrefs)
	return hrefs
}

// discoverURLs gathers sitemap and/or anchor candidates, filters by scope
// and include/exclude regexes, dedupes (ignoring fragments and trailing
// slashes), and prioritises candidates sharing the seed's base pathname.
func discoverURLs(ctx context.Context, d browserdriver.Driver, cfg CrawlConfig) []string {
	seed := d.URL()
	var candidates []string

	if cfg.Sitemap != "" {
		candidates = append(candidates, fetchSitemapURLs(cfg.Sitemap)...)
	}
	candidates = append(candidates, urlutil.ResolveLinks(seed, currentPageAnchors(ctx, d))...)

	include := compileAll(cfg.Include)
	exclude := compileAll(cfg.Exclude)
	mode := cfg.Mode
	if mode == "" {
		mode = "domain"
	}

	seen := map[string]struct{}{}
	var filtered []string
	for _, c := range candidates {
		key := urlutil.CanonicalKey(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if !urlutil.SameScope(mode, seed, c) {
			continue
		}
		if len(include) > 0 && !matchesAny(include, c) {
			continue
		}
		if matchesAny(exclude, c) {
			continue
		}
		filtered = append(filtered, c)
	}

	basePath := urlutil.BasePathname(seed)
	sort.SliceStable(filtered, func(i, j int) bool {
		iShared := strings.HasPrefix(urlutil.BasePathname(filtered[i]), basePath)
		jShared := strings.HasPrefix(urlutil.BasePathname(filtered[j]), basePath)
		if iShared != jShared {
			return iShared
		}
		return false
	})

	limit := cfg.Limit
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// visitPage navigates to url and extracts the page-content record. html is
// parsed host-side with goquery for title/description/text/wordCount,
// keeping the in-page evaluate call minimal.
func visitPage(ctx context.Context, d browserdriver.Driver, url string) (PageRecord, error) {
	if err := d.Navigate(ctx, url, "load", 30*time.Second); err != nil {
		return PageRecord{}, err
	}

	var raw struct {
		HTML  string   `json:"html"`
		Links []string `json:"links"`
	}
	expr := `function(){
		return {
			html: document.documentElement.outerHTML,
			links: Array.prototype.map.call(document.querySelectorAll('a[href]'), function(a){ return a.getAttribute('href'); })
		};
	}`
	if err := d.Evaluate(ctx, expr, nil, &raw); err != nil {
		return PageRecord{}, err
	}

	return buildPageRecord(url, raw.HTML, urlutil.ResolveLinks(url, raw.Links)), nil
}

func buildPageRecord(pageURL, html string, links []string) PageRecord {
	rec := PageRecord{URL: pageURL, HTML: html, Links: links, Metadata: map[string]string{}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return rec
	}

	rec.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		rec.Description = strings.TrimSpace(desc)
	}

	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if name != "" {
			rec.Metadata[name] = content
		}
	})

	text := strings.TrimSpace(doc.Find("body").Text())
	rec.Text = text
	rec.WordCount = countWords(text)

	return rec
}

func countWords(s string) int {
	fields := strings.Fields(s)
	return len(fields)
}

// marshalRecords converts PageRecords to the generic row shape the result
// aggregator stores.
func marshalRecords(recs []PageRecord) []map[string]any {
	out := make([]map[string]any, len(recs))
	for i, r := range recs {
		b, _ := json.Marshal(r)
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		out[i] = m
	}
	return out
}
