package browserdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/use-agent/workflowrunner/internal/proxy"
)

// PoolOptions configures the shared Chrome allocator a Pool launches pages
// from. One allocator (one Chrome process) backs every page the pool hands
// out; pages are cheap, the allocator is not.
type PoolOptions struct {
	Headless  bool
	UserAgent string
	// Proxy is used verbatim if set. Proxies, when Proxy is empty and more
	// than one is given, rotates through a proxy.Pool and picks one healthy
	// entry for this allocator's lifetime (the underlying Chrome process
	// cannot change proxy per tab, only per launch).
	Proxy     string
	Proxies   []string
	ExtraArgs []chromedp.ExecAllocatorOption
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Pool owns the Chrome allocator context and hands out pages as Drivers. It
// is the adaptation of a pre-warmed single-process-many-contexts allocator:
// instead of pooling a fixed number of ready contexts, it lets the caller
// pull as many concurrent pages as it needs (bounded upstream by
// internal/concurrency) and tears each one down on release.
type Pool struct {
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	closed      bool
	opened      int

	proxies     *proxy.ProxyPool
	activeProxy string
}

// NewPool launches the shared allocator context. No Chrome process starts
// until the first page is requested. When opts.Proxy is empty and more than
// one opts.Proxies entry is given, one healthy proxy is drawn from rotation
// for this allocator's lifetime; the underlying Chrome process is launched
// once and can't change proxy per tab.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	var proxies *proxy.ProxyPool
	selectedProxy := opts.Proxy
	if selectedProxy == "" && len(opts.Proxies) > 0 {
		proxies = proxy.NewProxyPool(opts.Proxies)
		selectedProxy = proxies.GetNext()
	}

	chromePath := FindChrome()

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.Flag("log-level", "3"),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("safebrowsing-disable-auto-update", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(opts.UserAgent),
	}

	if chromePath != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(chromePath)}, allocOpts...)
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if selectedProxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(selectedProxy))
	}
	allocOpts = append(allocOpts, opts.ExtraArgs...)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	log.Debug().Bool("headless", opts.Headless).Str("proxy", selectedProxy).Msg("browser allocator ready")

	return &Pool{allocCtx: allocCtx, allocCancel: allocCancel, proxies: proxies, activeProxy: selectedProxy}, nil
}

// NewPage launches a fresh top-level browser context (tab) and wraps it as a
// Driver. Callers must Close the returned Driver when done with it.
func (p *Pool) NewPage(ctx context.Context) (Driver, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool is closed")
	}
	p.opened++
	n := p.opened
	p.mu.Unlock()

	pageCtx, pageCancel := chromedp.NewContext(p.allocCtx)
	if err := chromedp.Run(pageCtx, chromedp.Navigate("about:blank")); err != nil {
		pageCancel()
		if p.proxies != nil && p.activeProxy != "" {
			p.proxies.MarkFailed(p.activeProxy)
		}
		return nil, fmt.Errorf("open page %d: %w", n, err)
	}
	if p.proxies != nil && p.activeProxy != "" {
		p.proxies.MarkHealthy(p.activeProxy)
	}

	log.Debug().Int("page", n).Msg("browser page opened")
	return newCDPDriver(pageCtx, pageCancel), nil
}

// Close tears down every page opened through this pool and stops the
// underlying Chrome process.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.allocCancel()
	log.Info().Msg("browser allocator closed")
	return nil
}
