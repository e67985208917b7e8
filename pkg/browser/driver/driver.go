// Package driver speaks to a Chromium page through playwright, either over an
// existing CDP endpoint or by launching a browser that playwright owns.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browser-agent/pkg/logging"
)

// DefaultTimeout bounds page operations when the caller's context has no
// deadline.
const DefaultTimeout = 30 * time.Second

// Page is the subset of page control the agent loop needs.
type Page interface {
	Goto(ctx context.Context, url string) error
	URL() string
	Title() (string, error)
	Content() (string, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	Scroll(ctx context.Context, pixels float64) error
	GoBack(ctx context.Context) error
	Press(ctx context.Context, key string) error
	WaitForLoad(ctx context.Context, timeout time.Duration) error
	Layout(ctx context.Context, selectors []string) (*Layout, error)
	Close() error
}

// Box is the vertical extent of an element relative to the top of the
// viewport, in CSS pixels.
type Box struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Layout locates elements against the viewport. Boxes follow the order of
// the selectors asked for and are nil where a selector matched nothing.
type Layout struct {
	Viewport float64 `json:"viewport"`
	Boxes    []*Box  `json:"boxes"`
}

const layoutScript = `(selectors) => JSON.stringify({
  viewport: window.innerHeight,
  boxes: selectors.map((sel) => {
    const el = document.querySelector(sel);
    if (!el) return null;
    const r = el.getBoundingClientRect();
    return {top: r.top, bottom: r.bottom};
  }),
})`

// Options selects how the page is obtained. An empty CDPURL means playwright
// launches and owns the browser.
type Options struct {
	CDPURL      string
	Executable  string
	Channel     string
	Headless    bool
	Permissions []string
	Timeout     time.Duration
	Log         *logging.Logger
}

// Opener returns a ready page.
type Opener func(ctx context.Context, opts Options) (Page, error)

var (
	installOnce sync.Once
	installErr  error
)

func install(skipBrowsers bool) error {
	installOnce.Do(func() {
		opts := &playwright.RunOptions{
			Verbose:             false,
			Stdout:              io.Discard,
			Stderr:              io.Discard,
			Browsers:            []string{"chromium"},
			SkipInstallBrowsers: skipBrowsers,
		}
		if err := playwright.Install(opts); err != nil {
			installErr = fmt.Errorf("failed to install playwright: %w", err)
		}
	})
	return installErr
}

// Open starts playwright and returns a page on the requested browser.
func Open(ctx context.Context, opts Options) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if err := install(opts.CDPURL != "" || opts.Executable != ""); err != nil {
		return nil, err
	}
	pw, err := playwright.Run(&playwright.RunOptions{Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	p := &pwPage{pw: pw, attached: opts.CDPURL != "", log: log}
	if err := p.open(opts); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

type pwPage struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     playwright.Page
	attached bool
	ownsCtx  bool
	log      *logging.Logger
	once     sync.Once
}

func (p *pwPage) open(opts Options) error {
	var err error
	if p.attached {
		p.browser, err = p.pw.Chromium.ConnectOverCDP(opts.CDPURL)
		if err != nil {
			return fmt.Errorf("failed to connect over CDP at %s: %w", opts.CDPURL, err)
		}
		p.log.Debugf("Connected to %s over CDP", opts.CDPURL)
	} else {
		launch := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(opts.Headless)}
		if opts.Executable != "" {
			launch.ExecutablePath = playwright.String(opts.Executable)
		}
		if opts.Channel != "" {
			launch.Channel = playwright.String(opts.Channel)
		}
		p.browser, err = p.pw.Chromium.Launch(launch)
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
	}

	// An attached Chrome already has the user's default context and tabs.
	if contexts := p.browser.Contexts(); len(contexts) > 0 {
		p.context = contexts[0]
	} else {
		p.context, err = p.browser.NewContext()
		if err != nil {
			return fmt.Errorf("failed to create context: %w", err)
		}
		p.ownsCtx = true
	}

	if perms := PermissionNames(opts.Permissions); len(perms) > 0 {
		if err := p.context.GrantPermissions(perms); err != nil {
			p.log.Warnf("Failed to grant browser permissions %v: %v", perms, err)
		}
	}

	if pages := p.context.Pages(); len(pages) > 0 {
		p.page = pages[0]
	} else {
		p.page, err = p.context.NewPage()
		if err != nil {
			return fmt.Errorf("failed to create page: %w", err)
		}
	}
	p.page.SetDefaultTimeout(millis(opts.Timeout))
	return nil
}

// PermissionNames maps configured permission names to the ones playwright
// accepts. clipboardReadWrite expands to clipboard-read and clipboard-write.
func PermissionNames(configured []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, raw := range configured {
		switch name := strings.TrimSpace(raw); strings.ToLower(name) {
		case "":
		case "clipboardreadwrite", "clipboard":
			add("clipboard-read")
			add("clipboard-write")
		case "clipboardread":
			add("clipboard-read")
		case "clipboardwrite", "clipboardsanitizedwrite":
			add("clipboard-write")
		default:
			add(name)
		}
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// timeout returns the time left before ctx expires, in playwright's
// milliseconds, or nil when ctx has no deadline.
func timeout(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	left := time.Until(deadline)
	if left < time.Millisecond {
		left = time.Millisecond
	}
	return playwright.Float(millis(left))
}

func (p *pwPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeout(ctx),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Title() (string, error) { return p.page.Title() }

func (p *pwPage) Content() (string, error) { return p.page.Content() }

func (p *pwPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: timeout(ctx)}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (p *pwPage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: timeout(ctx)}); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (p *pwPage) SelectOption(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Locator(selector).First().SelectOption(
		playwright.SelectOptionValues{Values: &[]string{value}},
		playwright.LocatorSelectOptionOptions{Timeout: timeout(ctx)},
	)
	if err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

func (p *pwPage) Scroll(ctx context.Context, pixels float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Mouse().Wheel(0, pixels); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

func (p *pwPage) GoBack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.GoBack(playwright.PageGoBackOptions{Timeout: timeout(ctx)}); err != nil {
		return fmt.Errorf("go back failed: %w", err)
	}
	return nil
}

func (p *pwPage) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("key press failed: %w", err)
	}
	return nil
}

// WaitForLoad waits for network idle, giving up quietly after timeout. Pages
// with long-polling never go idle.
func (p *pwPage) WaitForLoad(ctx context.Context, wait time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if wait <= 0 {
		return nil
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(millis(wait)),
	})
	if err != nil {
		p.log.Debugf("Network idle wait ended: %v", err)
	}
	return nil
}

// Layout reads the boxes of the elements matched by selectors in one round
// trip.
func (p *pwPage) Layout(ctx context.Context, selectors []string) (*Layout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := p.page.Evaluate(layoutScript, selectors)
	if err != nil {
		return nil, fmt.Errorf("layout read failed: %w", err)
	}
	text, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("layout read returned %T", raw)
	}
	var layout Layout
	if err := json.Unmarshal([]byte(text), &layout); err != nil {
		return nil, fmt.Errorf("failed to decode layout: %w", err)
	}
	return &layout, nil
}

// Close releases playwright. An attached browser is only disconnected; a
// launched one is closed.
func (p *pwPage) Close() error {
	var errs []error
	p.once.Do(func() {
		if p.ownsCtx && p.context != nil {
			if err := p.context.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if p.browser != nil {
			if err := p.browser.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if p.pw != nil {
			if err := p.pw.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
