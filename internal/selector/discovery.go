package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/session"
	"github.com/phamdoug22/happyslap-bot/internal/site"
)

// Discovery hosts a game by driving the site's discover page.
type Discovery struct {
	site   site.Site
	term   string
	timing Timing
	pick   Picker
	clock  clock.Clock
	log    *zap.Logger
}

func NewDiscovery(s site.Site, searchTerm string, timing Timing, pick Picker, clk clock.Clock, log *zap.Logger) *Discovery {
	return &Discovery{site: s, term: searchTerm, timing: timing, pick: pick, clock: clk, log: log}
}

func (d *Discovery) Name() string { return "discover" }

func (d *Discovery) Select(ctx context.Context, s *session.Session) (LiveGame, error) {
	drv := s.Driver
	d.log.Info("finding a trivia game", zap.String("strategy", d.Name()))

	if err := drv.Navigate(ctx, d.site.DiscoverURL()); err != nil {
		return LiveGame{}, err
	}
	if err := drv.WaitForLoadState(ctx, browser.LoadStateNetworkIdle, d.timing.WaitTimeout); err != nil {
		return LiveGame{}, err
	}

	search, err := drv.WaitForSelector(ctx, site.SearchInput, d.timing.WaitTimeout)
	if err != nil {
		return LiveGame{}, fmt.Errorf("search input: %w", err)
	}
	if err := search.Fill(ctx, d.term); err != nil {
		return LiveGame{}, err
	}
	d.log.Debug("searching", zap.String("term", d.term))
	if err := d.clock.Sleep(ctx, d.timing.SearchDebounce); err != nil {
		return LiveGame{}, err
	}

	cands, err := d.candidates(ctx, drv)
	if err != nil {
		return LiveGame{}, err
	}
	c, err := pick(d.pick, cands)
	if err != nil {
		return LiveGame{}, err
	}
	d.log.Info("selected game", zap.String("title", c.Title), zap.Int("candidates", len(cands)))

	if err := c.Element.Click(ctx); err != nil {
		return LiveGame{}, fmt.Errorf("select game: %w", err)
	}
	host, err := drv.WaitForSelector(ctx, site.HostGameButton, d.timing.WaitTimeout)
	if err != nil {
		return LiveGame{}, fmt.Errorf("host button: %w", err)
	}
	if err := host.Click(ctx); err != nil {
		return LiveGame{}, fmt.Errorf("host game: %w", err)
	}

	if err := drv.WaitForURL(ctx, d.site.JoinCodePattern(), d.timing.WaitTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return LiveGame{}, fmt.Errorf("%w: %w", ErrNavigationTimeout, err)
		}
		return LiveGame{}, err
	}
	if err := settle(ctx, drv, d.clock, d.timing); err != nil {
		return LiveGame{}, err
	}

	code, err := joinCode(ctx, drv)
	if err != nil {
		return LiveGame{}, err
	}
	return LiveGame{
		JoinCode:  code,
		URL:       drv.URL(),
		Title:     c.Title,
		Strategy:  d.Name(),
		CreatedAt: d.clock.Now(),
	}, nil
}

func (d *Discovery) candidates(ctx context.Context, drv browser.Driver) ([]Candidate, error) {
	if _, err := drv.WaitForSelector(ctx, site.ResultGrid, d.timing.WaitTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return nil, fmt.Errorf("%w: result grid never rendered", ErrNoGamesFound)
		}
		return nil, err
	}
	cards, err := drv.Query(ctx, site.ResultCards)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(cards))
	for _, card := range cards {
		title, err := card.InnerText(ctx)
		if err != nil {
			title = ""
		}
		out = append(out, Candidate{
			Title:    firstLine(title),
			GameType: "trivia",
			Element:  card,
		})
	}
	return out, nil
}

// settle waits for the lobby to finish loading and its player list to reset.
func settle(ctx context.Context, drv browser.Driver, clk clock.Clock, t Timing) error {
	if err := drv.WaitForLoadState(ctx, browser.LoadStateNetworkIdle, t.WaitTimeout); err != nil {
		return err
	}
	return clk.Sleep(ctx, t.SettleDelay)
}

// joinCode reads the code from the lobby URL, falling back to the heading.
func joinCode(ctx context.Context, drv browser.Driver) (string, error) {
	if code, ok := site.JoinCodeFromURL(drv.URL()); ok {
		return code, nil
	}
	els, err := drv.Query(ctx, site.JoinCodeHeading)
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		return "", fmt.Errorf("%w at %s", ErrNoJoinCode, drv.URL())
	}
	text, err := els[0].InnerText(ctx)
	if err != nil {
		return "", err
	}
	code := strings.TrimSpace(text)
	if code == "" {
		return "", fmt.Errorf("%w at %s: empty heading", ErrNoJoinCode, drv.URL())
	}
	return code, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
