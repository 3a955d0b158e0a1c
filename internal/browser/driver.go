// Package browser defines the UI-automation capability the bot drives and
// a playwright-backed implementation of it.
package browser

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// ErrTimeout is returned (wrapped) by every wait that exceeds its timeout.
var ErrTimeout = errors.New("browser wait timed out")

type LoadState string

const (
	LoadStateLoad             LoadState = "load"
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// Driver is one authenticated browsing context with a single page.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	Query(ctx context.Context, selector string) ([]Element, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	WaitForURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error
	WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error
	Evaluate(ctx context.Context, script string, arg any) (any, error)
	URL() string
	Close() error
}

type Element interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, text string) error
	InnerText(ctx context.Context) (string, error)
}

// Launcher hands out fresh, unauthenticated browsing contexts.
type Launcher interface {
	NewDriver(ctx context.Context) (Driver, error)
}
