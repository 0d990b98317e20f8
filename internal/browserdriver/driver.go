// Package browserdriver implements the Browser Driver Adapter: the minimal
// capability surface the interpreter, dispatcher, and pagination engine
// consume from a real browser, backed by chromedp.
package browserdriver

import (
	"context"
	"time"
)

// WaitState is the element presence state WaitForSelector blocks on.
type WaitState string

const (
	WaitVisible WaitState = "visible"
	WaitAttached WaitState = "attached"
	WaitHidden  WaitState = "hidden"
	WaitDetached WaitState = "detached"
)

// ClickOptions configures a Click call.
type ClickOptions struct {
	Force bool
}

// ScreenshotOptions configures a Screenshot call.
type ScreenshotOptions struct {
	FullPage bool
	Quality  int
}

// Cookie mirrors a browser cookie as read from or set on the page context.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  float64
	HTTPOnly bool
	Secure   bool
}

// Locator is a lazily-resolved reference to zero or more elements, returned
// by Locate so callers can chain waits/actions without re-parsing the
// selector dialect each time.
type Locator interface {
	// Count returns the number of elements currently matching.
	Count(ctx context.Context) (int, error)
	// Click clicks the first matching element.
	Click(ctx context.Context, opts ClickOptions) error
}

// Keyboard is the subset of synthetic keyboard input the dispatcher needs
// for dotted actions like "keyboard.press".
type Keyboard interface {
	Down(ctx context.Context, key string) error
	Up(ctx context.Context, key string) error
	Press(ctx context.Context, key string) error
	Type(ctx context.Context, text string) error
}

// Mouse is the subset of synthetic mouse input needed for "mouse.wheel" etc.
type Mouse interface {
	Move(ctx context.Context, x, y float64) error
	Click(ctx context.Context, x, y float64) error
	Wheel(ctx context.Context, dx, dy float64) error
}

// Driver is the capability set the core consumes from a live browser page,
// per spec.md §4.1. One instance is bound to one page.
type Driver interface {
	Navigate(ctx context.Context, url string, waitUntil string, timeout time.Duration) error
	Click(ctx context.Context, selector string, opts ClickOptions) error
	WaitForSelector(ctx context.Context, selector string, state WaitState, timeout time.Duration) error
	Locate(ctx context.Context, selector string) (Locator, error)
	Evaluate(ctx context.Context, expr string, arg any, out any) error
	AddInitScript(ctx context.Context, script string) error

	Cookies(ctx context.Context, urls []string) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	URL() string
	IsClosed() bool
	Close(ctx context.Context) error

	NewPage(ctx context.Context) (Driver, error)
	OnPopup(handler func(Driver))
	OnFrameNavigated(handler func(url string))

	Keyboard() Keyboard
	Mouse() Mouse
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)

	// CallMethod resolves a dotted driver method path (e.g. "keyboard.press")
	// against this driver instance, for the Action Dispatcher's catch-all
	// DriverMethodCall variant.
	CallMethod(ctx context.Context, path string, args []any) error
}
