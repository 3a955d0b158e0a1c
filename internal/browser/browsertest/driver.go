// Package browsertest provides a scriptable in-memory browser.Driver.
package browsertest

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
)

// Element is a fake element that records interactions.
type Element struct {
	Text    string
	Clicks  int
	Filled  []string
	OnClick func() error
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Clicks++
	if e.OnClick != nil {
		return e.OnClick()
	}
	return nil
}

func (e *Element) Fill(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Filled = append(e.Filled, text)
	return nil
}

func (e *Element) InnerText(ctx context.Context) (string, error) {
	return e.Text, ctx.Err()
}

type Eval struct {
	Script string
	Arg    any
}

// Driver resolves selectors through Elements (static) and Dynamic (computed
// per query, consulted first). Every interaction is recorded.
type Driver struct {
	CurrentURL string

	Elements map[string][]*Element
	Dynamic  map[string]func() []*Element

	// EvalFunc answers Evaluate; nil means every script returns nil.
	EvalFunc   func(script string, arg any) (any, error)
	OnNavigate func(url string)

	// Errors injects a failure for a selector on Query/WaitForSelector/Click.
	Errors map[string]error

	Navigations []string
	Fills       map[string][]string
	Clicks      map[string]int
	Evals       []Eval
	LoadWaits   []browser.LoadState
	Closed      int
}

func New(url string) *Driver {
	return &Driver{
		CurrentURL: url,
		Elements:   map[string][]*Element{},
		Dynamic:    map[string]func() []*Element{},
		Errors:     map[string]error{},
		Fills:      map[string][]string{},
		Clicks:     map[string]int{},
	}
}

func (d *Driver) lookup(selector string) ([]*Element, error) {
	if err := d.Errors[selector]; err != nil {
		return nil, err
	}
	if f := d.Dynamic[selector]; f != nil {
		return f(), nil
	}
	return d.Elements[selector], nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.Navigations = append(d.Navigations, url)
	d.CurrentURL = url
	if d.OnNavigate != nil {
		d.OnNavigate(url)
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	els, err := d.lookup(selector)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return fmt.Errorf("fill %s: no element", selector)
	}
	d.Fills[selector] = append(d.Fills[selector], text)
	return els[0].Fill(ctx, text)
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	els, err := d.lookup(selector)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return fmt.Errorf("click %s: no element", selector)
	}
	d.Clicks[selector]++
	return els[0].Click(ctx)
}

func (d *Driver) Query(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	els, err := d.lookup(selector)
	if err != nil {
		return nil, err
	}
	out := make([]browser.Element, 0, len(els))
	for _, e := range els {
		out = append(out, e)
	}
	return out, nil
}

// WaitForSelector never blocks: it succeeds if the selector resolves now and
// times out otherwise.
func (d *Driver) WaitForSelector(ctx context.Context, selector string, _ time.Duration) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	els, err := d.lookup(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("wait for %s: %w", selector, browser.ErrTimeout)
	}
	return els[0], nil
}

func (d *Driver) WaitForURL(ctx context.Context, pattern *regexp.Regexp, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !pattern.MatchString(d.CurrentURL) {
		return fmt.Errorf("wait for url %s (at %s): %w", pattern, d.CurrentURL, browser.ErrTimeout)
	}
	return nil
}

func (d *Driver) WaitForLoadState(ctx context.Context, state browser.LoadState, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.LoadWaits = append(d.LoadWaits, state)
	return nil
}

func (d *Driver) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.Evals = append(d.Evals, Eval{Script: script, Arg: arg})
	if d.EvalFunc != nil {
		return d.EvalFunc(script, arg)
	}
	return nil, nil
}

func (d *Driver) URL() string { return d.CurrentURL }

func (d *Driver) Close() error {
	d.Closed++
	return nil
}

// EvalsOf returns the arguments of every evaluation of script, in order.
func (d *Driver) EvalsOf(script string) []any {
	var out []any
	for _, e := range d.Evals {
		if e.Script == script {
			out = append(out, e.Arg)
		}
	}
	return out
}

// Launcher hands out drivers built by Make and counts them.
type Launcher struct {
	Make     func() *Driver
	Launched []*Driver
	Err      error
}

func (l *Launcher) NewDriver(ctx context.Context) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Err != nil {
		return nil, l.Err
	}
	d := l.Make()
	l.Launched = append(l.Launched, d)
	return d, nil
}
