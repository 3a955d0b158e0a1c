package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/site"
)

var ErrAuthentication = errors.New("authentication not confirmed")
var ErrNoBearerToken = errors.New("no bearer token in local storage")

type Credentials struct {
	Identity string
	Secret   string
}

// Session is one authenticated browsing context. It is invalid once the
// Manager that produced it refreshes or closes.
type Session struct {
	Driver          browser.Driver
	AuthenticatedAt time.Time

	tokenKey string
	token    string
}

func NewSession(d browser.Driver, authenticatedAt time.Time, tokenKey string) *Session {
	return &Session{Driver: d, AuthenticatedAt: authenticatedAt, tokenKey: tokenKey}
}

// BearerToken reads the API credential the site stores in local storage
// after login. The value is cached for the life of the session.
func (s *Session) BearerToken(ctx context.Context) (string, error) {
	if s.token != "" {
		return s.token, nil
	}
	v, err := s.Driver.Evaluate(ctx, site.ReadStorageScript, s.tokenKey)
	if err != nil {
		return "", fmt.Errorf("read bearer token: %w", err)
	}
	tok, _ := v.(string)
	if tok == "" {
		return "", fmt.Errorf("%w (key %q)", ErrNoBearerToken, s.tokenKey)
	}
	s.token = tok
	return tok, nil
}

type Options struct {
	RefreshInterval time.Duration
	LoginTimeout    time.Duration
	WaitTimeout     time.Duration
	TokenKey        string
}

// Manager exclusively owns the authenticated context.
type Manager struct {
	launcher browser.Launcher
	creds    Credentials
	site     site.Site
	opts     Options
	clock    clock.Clock
	log      *zap.Logger

	current *Session
}

func NewManager(l browser.Launcher, creds Credentials, s site.Site, opts Options, clk clock.Clock, log *zap.Logger) *Manager {
	return &Manager{
		launcher: l,
		creds:    creds,
		site:     s,
		opts:     opts,
		clock:    clk,
		log:      log,
	}
}

// Ensure returns the current session, re-authenticating first when there is
// none, when force is set, or when the refresh interval has passed.
func (m *Manager) Ensure(ctx context.Context, force bool) (*Session, error) {
	if m.current != nil && !force && !m.due() {
		return m.current, nil
	}

	reason := "startup"
	switch {
	case force:
		reason = "forced"
	case m.current != nil:
		reason = "refresh interval elapsed"
	}
	m.log.Info("authenticating", zap.String("reason", reason), zap.String("email", m.creds.Identity))

	if err := m.release(); err != nil {
		m.log.Warn("closing previous browser context", zap.Error(err))
	}

	d, err := m.launcher.NewDriver(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser context: %w", err)
	}
	if err := m.login(ctx, d); err != nil {
		if cerr := d.Close(); cerr != nil {
			m.log.Warn("closing failed browser context", zap.Error(cerr))
		}
		m.log.Error("login failed", zap.Error(err))
		return nil, err
	}

	m.current = NewSession(d, m.clock.Now(), m.opts.TokenKey)
	m.log.Info("login successful")
	return m.current, nil
}

func (m *Manager) due() bool {
	return m.opts.RefreshInterval > 0 && m.clock.Now().Sub(m.current.AuthenticatedAt) > m.opts.RefreshInterval
}

func (m *Manager) login(ctx context.Context, d browser.Driver) error {
	if err := d.Navigate(ctx, m.site.LoginURL()); err != nil {
		return err
	}
	if _, err := d.WaitForSelector(ctx, site.UsernameInput, m.opts.WaitTimeout); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := d.Fill(ctx, site.UsernameInput, m.creds.Identity); err != nil {
		return err
	}
	if err := d.Fill(ctx, site.PasswordInput, m.creds.Secret); err != nil {
		return err
	}
	if err := d.Click(ctx, site.LoginButton); err != nil {
		return err
	}

	landing := regexpExact(m.site.HostURL())
	if err := d.WaitForURL(ctx, landing, m.opts.LoginTimeout); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return nil
}

// Close releases the current context; the Manager can still Ensure again.
func (m *Manager) Close() error { return m.release() }

func (m *Manager) release() error {
	if m.current == nil {
		return nil
	}
	err := m.current.Driver.Close()
	m.current = nil
	return err
}
