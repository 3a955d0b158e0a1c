package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
)

type Options struct {
	Channel  string
	Headless bool
	Args     []string
	Install  bool // download the browser binaries before launching
}

// Playwright owns the playwright runtime and one launched browser. Each call
// to NewDriver opens an isolated BrowserContext with a single page.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func Launch(opts Options) (*Playwright, error) {
	if opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.Channel != "" {
		launch.Channel = playwright.String(opts.Channel)
	}

	b, err := pw.Chromium.Launch(launch)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("launch chromium: %w", err), pw.Stop())
	}
	return &Playwright{pw: pw, browser: b}, nil
}

func (p *Playwright) NewDriver(ctx context.Context) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bctx, err := p.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("new page: %w", err), bctx.Close())
	}
	return &pageDriver{bctx: bctx, page: page}, nil
}

func (p *Playwright) Close() error {
	return multierr.Append(p.browser.Close(), p.pw.Stop())
}

type pageDriver struct {
	bctx playwright.BrowserContext
	page playwright.Page
}

func (d *pageDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page.Goto(url); err != nil {
		return wrap("goto "+url, err)
	}
	return nil
}

func (d *pageDriver) Fill(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap("fill "+selector, d.page.Locator(selector).First().Fill(text))
}

func (d *pageDriver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap("click "+selector, d.page.Locator(selector).First().Click())
}

func (d *pageDriver) Query(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := d.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, wrap("query "+selector, err)
	}
	out := make([]Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, handle{h})
	}
	return out, nil
}

func (d *pageDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := d.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return nil, wrap("wait for "+selector, err)
	}
	if h == nil {
		return nil, fmt.Errorf("wait for %s: %w", selector, ErrTimeout)
	}
	return handle{h}, nil
}

func (d *pageDriver) WaitForURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap("wait for url "+pattern.String(), d.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		Timeout: millis(timeout),
	}))
}

func (d *pageDriver) WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ls *playwright.LoadState
	switch state {
	case LoadStateLoad:
		ls = playwright.LoadStateLoad
	case LoadStateDOMContentLoaded:
		ls = playwright.LoadStateDomcontentloaded
	default:
		ls = playwright.LoadStateNetworkidle
	}
	return wrap("wait for "+string(state), d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   ls,
		Timeout: millis(timeout),
	}))
}

func (d *pageDriver) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		v   any
		err error
	)
	if arg == nil {
		v, err = d.page.Evaluate(script)
	} else {
		v, err = d.page.Evaluate(script, arg)
	}
	if err != nil {
		return nil, wrap("evaluate", err)
	}
	return v, nil
}

func (d *pageDriver) URL() string { return d.page.URL() }

func (d *pageDriver) Close() error {
	return multierr.Append(d.page.Close(), d.bctx.Close())
}

type handle struct {
	h playwright.ElementHandle
}

func (e handle) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap("click element", e.h.Click())
}

func (e handle) Fill(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap("fill element", e.h.Fill(text))
}

func (e handle) InnerText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s, err := e.h.InnerText()
	return s, wrap("inner text", err)
}

// wrap tags playwright timeouts with ErrTimeout so callers can classify them
// without importing playwright.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func millis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}
