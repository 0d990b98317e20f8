package browserdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// cdpDriver is the chromedp-backed Driver implementation. One value is
// bound to exactly one browser tab.
type cdpDriver struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	popupFn    func(Driver)
	navFn      func(string)
	currentURL string
}

func newCDPDriver(ctx context.Context, cancel context.CancelFunc) *cdpDriver {
	d := &cdpDriver{ctx: ctx, cancel: cancel}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				d.mu.Lock()
				d.currentURL = e.Frame.URL
				fn := d.navFn
				d.mu.Unlock()
				if fn != nil {
					fn(e.Frame.URL)
				}
			}
		case *page.EventWindowOpen:
			d.mu.Lock()
			fn := d.popupFn
			d.mu.Unlock()
			if fn != nil {
				go d.spawnPopup(e.URL, fn)
			}
		}
	})

	return d
}

func (d *cdpDriver) spawnPopup(url string, fn func(Driver)) {
	popupCtx, popupCancel := chromedp.NewContext(d.ctx)
	if err := chromedp.Run(popupCtx, chromedp.Navigate(url)); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("popup navigation failed")
		popupCancel()
		return
	}
	fn(newCDPDriver(popupCtx, popupCancel))
}

func (d *cdpDriver) Navigate(ctx context.Context, url string, waitUntil string, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()

	var tasks chromedp.Tasks
	tasks = append(tasks, chromedp.Navigate(url))
	switch waitUntil {
	case "", "load":
		tasks = append(tasks, chromedp.WaitReady("body", chromedp.ByQuery))
	case "networkidle":
		tasks = append(tasks, chromedp.WaitReady("body", chromedp.ByQuery))
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			time.Sleep(300 * time.Millisecond)
			return nil
		}))
	}

	if err := chromedp.Run(runCtx, tasks); err != nil {
		return fmt.Errorf("navigate %q: %w", url, err)
	}
	d.mu.Lock()
	d.currentURL = url
	d.mu.Unlock()
	return nil
}

func (d *cdpDriver) Click(ctx context.Context, selector string, opts ClickOptions) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	_ = ctx

	action := chromedp.Click(selector, chromedp.ByQuery)
	if opts.Force {
		action = chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)
	}
	if err := chromedp.Run(runCtx, action); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func waitStateTo(state WaitState) func(s *chromedp.Selector) {
	switch state {
	case WaitVisible:
		return chromedp.NodeVisible
	case WaitHidden, WaitDetached:
		return chromedp.NodeNotVisible
	default:
		return chromedp.NodeEnabled
	}
}

func (d *cdpDriver) WaitForSelector(ctx context.Context, selector string, state WaitState, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()

	var err error
	switch state {
	case WaitHidden, WaitDetached:
		err = chromedp.Run(runCtx, chromedp.WaitNotVisible(selector, chromedp.ByQuery))
	default:
		err = chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	}
	if err != nil {
		return fmt.Errorf("wait for %q (%s): %w", selector, state, err)
	}
	return nil
}

type cdpLocator struct {
	driver   *cdpDriver
	selector string
}

func (d *cdpDriver) Locate(ctx context.Context, selector string) (Locator, error) {
	return &cdpLocator{driver: d, selector: selector}, nil
}

func (l *cdpLocator) Count(ctx context.Context) (int, error) {
	var nodes []*cdp.Node
	if err := chromedp.Run(l.driver.ctx, chromedp.Nodes(l.selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (l *cdpLocator) Click(ctx context.Context, opts ClickOptions) error {
	return l.driver.Click(ctx, l.selector, opts)
}

func (d *cdpDriver) Evaluate(ctx context.Context, expr string, arg any, out any) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	_ = ctx

	call := expr
	if arg != nil {
		argJSON, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("marshal eval arg: %w", err)
		}
		call = fmt.Sprintf("(%s)(%s)", expr, string(argJSON))
	} else {
		call = fmt.Sprintf("(%s)()", expr)
	}

	if out == nil {
		return chromedp.Run(runCtx, chromedp.Evaluate(call, nil))
	}
	return chromedp.Run(runCtx, chromedp.Evaluate(call, out, func(p *chromedp.EvaluateParams) *chromedp.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (d *cdpDriver) AddInitScript(ctx context.Context, script string) error {
	return chromedp.Run(d.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

func (d *cdpDriver) Cookies(ctx context.Context, urls []string) ([]Cookie, error) {
	var netCookies []*network.Cookie
	err := chromedp.Run(d.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		if len(urls) > 0 {
			netCookies, err = network.GetCookies().WithUrls(urls).Do(ctx)
		} else {
			netCookies, err = network.GetCookies().Do(ctx)
		}
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	out := make([]Cookie, 0, len(netCookies))
	for _, c := range netCookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out, nil
}

// SetCookies restores a previously captured cookie jar onto this page,
// used to resume a named session without replaying a login flow.
func (d *cdpDriver) SetCookies(ctx context.Context, cookies []Cookie) error {
	return chromedp.Run(d.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				params = params.WithExpires(cdp.TimeSinceEpoch(c.Expires))
			}
			if _, err := params.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %q: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (d *cdpDriver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentURL
}

func (d *cdpDriver) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *cdpDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	return nil
}

func (d *cdpDriver) NewPage(ctx context.Context) (Driver, error) {
	pageCtx, pageCancel := chromedp.NewContext(d.ctx)
	if err := chromedp.Run(pageCtx, chromedp.Navigate("about:blank")); err != nil {
		pageCancel()
		return nil, err
	}
	return newCDPDriver(pageCtx, pageCancel), nil
}

func (d *cdpDriver) OnPopup(handler func(Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.popupFn = handler
}

func (d *cdpDriver) OnFrameNavigated(handler func(url string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navFn = handler
}

type cdpKeyboard struct{ d *cdpDriver }

func (d *cdpDriver) Keyboard() Keyboard { return &cdpKeyboard{d: d} }

func (k *cdpKeyboard) Down(ctx context.Context, key string) error {
	return chromedp.Run(k.d.ctx, chromedp.KeyEvent(key))
}
func (k *cdpKeyboard) Up(ctx context.Context, key string) error {
	return nil
}
func (k *cdpKeyboard) Press(ctx context.Context, key string) error {
	return chromedp.Run(k.d.ctx, chromedp.KeyEvent(key))
}
func (k *cdpKeyboard) Type(ctx context.Context, text string) error {
	return chromedp.Run(k.d.ctx, chromedp.SendKeys("body", text, chromedp.ByQuery))
}

type cdpMouse struct{ d *cdpDriver }

func (d *cdpDriver) Mouse() Mouse { return &cdpMouse{d: d} }

func (m *cdpMouse) Move(ctx context.Context, x, y float64) error {
	return chromedp.Run(m.d.ctx, chromedp.MouseEvent(input.MouseMoved, x, y))
}
func (m *cdpMouse) Click(ctx context.Context, x, y float64) error {
	return chromedp.Run(m.d.ctx, chromedp.MouseClickXY(x, y))
}
func (m *cdpMouse) Wheel(ctx context.Context, dx, dy float64) error {
	return chromedp.Run(m.d.ctx, chromedp.ScrollIntoView("body", chromedp.ByQuery))
}

func (d *cdpDriver) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if opts.FullPage {
		action = chromedp.FullScreenshot(&buf, quality(opts.Quality))
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := chromedp.Run(d.ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func quality(q int) int {
	if q <= 0 {
		return 90
	}
	return q
}

// CallMethod resolves dotted driver method calls used by dispatch actions
// that address the driver directly (e.g. "keyboard.press", "mouse.wheel")
// rather than through a named built-in.
func (d *cdpDriver) CallMethod(ctx context.Context, path string, args []any) error {
	switch path {
	case "keyboard.press":
		if len(args) != 1 {
			return fmt.Errorf("keyboard.press expects 1 arg")
		}
		key, _ := args[0].(string)
		return d.Keyboard().Press(ctx, key)
	case "keyboard.type":
		if len(args) != 1 {
			return fmt.Errorf("keyboard.type expects 1 arg")
		}
		text, _ := args[0].(string)
		return d.Keyboard().Type(ctx, text)
	case "mouse.wheel":
		if len(args) != 2 {
			return fmt.Errorf("mouse.wheel expects 2 args")
		}
		dx, _ := args[0].(float64)
		dy, _ := args[1].(float64)
		return d.Mouse().Wheel(ctx, dx, dy)
	case "keyboard.down":
		if len(args) != 1 {
			return fmt.Errorf("keyboard.down expects 1 arg")
		}
		key, _ := args[0].(string)
		return d.Keyboard().Down(ctx, key)
	case "keyboard.up":
		if len(args) != 1 {
			return fmt.Errorf("keyboard.up expects 1 arg")
		}
		key, _ := args[0].(string)
		return d.Keyboard().Up(ctx, key)
	case "mouse.move":
		if len(args) != 2 {
			return fmt.Errorf("mouse.move expects 2 args")
		}
		x, _ := args[0].(float64)
		y, _ := args[1].(float64)
		return d.Mouse().Move(ctx, x, y)
	case "mouse.click":
		if len(args) != 2 {
			return fmt.Errorf("mouse.click expects 2 args")
		}
		x, _ := args[0].(float64)
		y, _ := args[1].(float64)
		return d.Mouse().Click(ctx, x, y)
	default:
		return fmt.Errorf("unknown driver method %q", path)
	}
}
