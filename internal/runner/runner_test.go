package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
	"github.com/phamdoug22/happyslap-bot/internal/browser/browsertest"
	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/engine"
	"github.com/phamdoug22/happyslap-bot/internal/lobby"
	"github.com/phamdoug22/happyslap-bot/internal/selector"
	"github.com/phamdoug22/happyslap-bot/internal/session"
	"github.com/phamdoug22/happyslap-bot/internal/site"
)

var t0 = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

var testOptions = Options{RoundPause: 2 * time.Second, ErrorBackoff: 5 * time.Second}

type fakeSessions struct {
	calls  int
	ensure func(call int) (*session.Session, error)
}

func (f *fakeSessions) Ensure(_ context.Context, force bool) (*session.Session, error) {
	if force {
		return nil, errors.New("runner never forces a refresh")
	}
	f.calls++
	return f.ensure(f.calls)
}

type fakeStrategy struct {
	calls int
	err   error
}

func (f *fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Select(_ context.Context, _ *session.Session) (selector.LiveGame, error) {
	f.calls++
	if f.err != nil {
		return selector.LiveGame{}, f.err
	}
	code := fmt.Sprintf("GAME%d", f.calls)
	return selector.LiveGame{JoinCode: code, Title: "Movie Trivia", Strategy: "fake"}, nil
}

type fakeLobby struct {
	games []selector.LiveGame
	err   error
}

func (f *fakeLobby) Run(_ context.Context, _ browser.Driver, game selector.LiveGame) (lobby.Result, error) {
	f.games = append(f.games, game)
	if f.err != nil {
		return lobby.Result{JoinCode: game.JoinCode}, f.err
	}
	return lobby.Result{JoinCode: game.JoinCode, Exit: engine.ExitGameEnded, GameStarted: true}, nil
}

type tracker struct {
	events    []string
	refreshed []time.Time
	errs      []error
}

func (t *tracker) RoundStarted(string) { t.events = append(t.events, "started") }

func (t *tracker) GameHosted(_ string, g selector.LiveGame) {
	t.events = append(t.events, "hosted:"+g.JoinCode)
}

func (t *tracker) RoundFinished(_ string, res lobby.Result, err error) {
	t.events = append(t.events, "finished:"+string(res.Exit))
	t.errs = append(t.errs, err)
}

func (t *tracker) SessionRefreshed(at time.Time) { t.refreshed = append(t.refreshed, at) }

type fixture struct {
	clk      *clock.Fake
	sessions *fakeSessions
	strategy *fakeStrategy
	lobby    *fakeLobby
	tracker  *tracker
}

func newFixture() *fixture {
	sess := session.NewSession(browsertest.New("https://happyslap.tv/host"), t0, "token")
	return &fixture{
		clk: clock.NewFake(t0),
		sessions: &fakeSessions{ensure: func(int) (*session.Session, error) {
			return sess, nil
		}},
		strategy: &fakeStrategy{},
		lobby:    &fakeLobby{},
		tracker:  &tracker{},
	}
}

// stopAfter cancels the returned context once n sleeps have happened.
func (f *fixture) stopAfter(n int) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	f.clk.OnTick = func(time.Time) {
		ticks++
		if ticks >= n {
			cancel()
		}
	}
	return ctx
}

func (f *fixture) runner(t *testing.T, opts Options) *Runner {
	return New(f.sessions, f.strategy, f.lobby, f.tracker, opts, f.clk, zaptest.NewLogger(t))
}

func TestRun_HostsRoundsBackToBack(t *testing.T) {
	f := newFixture()
	ctx := f.stopAfter(3)

	require.NoError(t, f.runner(t, testOptions).Run(ctx))

	assert.Equal(t, 3, f.sessions.calls)
	require.Len(t, f.lobby.games, 3)
	assert.Equal(t, "GAME3", f.lobby.games[2].JoinCode)
	assert.Equal(t, 6*time.Second, f.clk.Slept(), "2s pause after each round")
	assert.Equal(t, []string{
		"started", "hosted:GAME1", "finished:game_ended",
		"started", "hosted:GAME2", "finished:game_ended",
		"started", "hosted:GAME3", "finished:game_ended",
	}, f.tracker.events)
	assert.Equal(t, []time.Time{t0}, f.tracker.refreshed, "one refresh for an unchanged session")
}

func TestRun_FailedRoundBacksOffAndRestarts(t *testing.T) {
	f := newFixture()
	f.strategy.err = selector.ErrNoGamesFound
	ctx := f.stopAfter(2)

	require.NoError(t, f.runner(t, testOptions).Run(ctx))

	assert.Equal(t, 2, f.strategy.calls)
	assert.Equal(t, 2, f.sessions.calls, "session is re-checked every round")
	assert.Empty(t, f.lobby.games)
	assert.Equal(t, 10*time.Second, f.clk.Slept(), "flat 5s backoff")
	require.Len(t, f.tracker.errs, 2)
	assert.ErrorIs(t, f.tracker.errs[0], selector.ErrNoGamesFound)
}

func TestRun_LobbyErrorAbandonsRound(t *testing.T) {
	f := newFixture()
	f.lobby.err = lobby.ErrStaleLobby
	ctx := f.stopAfter(1)

	require.NoError(t, f.runner(t, testOptions).Run(ctx))

	require.Len(t, f.tracker.errs, 1)
	assert.ErrorIs(t, f.tracker.errs[0], lobby.ErrStaleLobby)
	assert.Contains(t, f.tracker.errs[0].Error(), "GAME1")
	assert.Equal(t, 5*time.Second, f.clk.Slept())
}

func TestRun_AuthCircuitBreaker(t *testing.T) {
	f := newFixture()
	f.sessions.ensure = func(int) (*session.Session, error) {
		return nil, fmt.Errorf("%w: landing page", session.ErrAuthentication)
	}
	opts := testOptions
	opts.MaxAuthFailures = 3

	err := f.runner(t, opts).Run(context.Background())

	require.ErrorIs(t, err, ErrTooManyAuthFailures)
	require.ErrorIs(t, err, session.ErrAuthentication)
	assert.Equal(t, 3, f.sessions.calls)
	assert.Zero(t, f.strategy.calls)
	assert.Equal(t, 10*time.Second, f.clk.Slept())
}

func TestRun_AuthFailuresRetryForeverByDefault(t *testing.T) {
	f := newFixture()
	f.sessions.ensure = func(int) (*session.Session, error) {
		return nil, session.ErrAuthentication
	}
	ctx := f.stopAfter(20)

	require.NoError(t, f.runner(t, testOptions).Run(ctx))
	assert.Equal(t, 20, f.sessions.calls)
}

func TestRun_AuthFailureCountResetsOnSuccess(t *testing.T) {
	f := newFixture()
	good := session.NewSession(browsertest.New("https://happyslap.tv/host"), t0, "token")
	f.sessions.ensure = func(call int) (*session.Session, error) {
		// fail, fail, ok, fail, fail, ok ...
		if call%3 == 0 {
			return good, nil
		}
		return nil, session.ErrAuthentication
	}
	opts := testOptions
	opts.MaxAuthFailures = 3
	ctx := f.stopAfter(9)

	require.NoError(t, f.runner(t, opts).Run(ctx))
	assert.Equal(t, 9, f.sessions.calls)
	assert.Len(t, f.lobby.games, 3)
}

func TestRun_ReportsEachNewSession(t *testing.T) {
	f := newFixture()
	f.sessions.ensure = func(call int) (*session.Session, error) {
		at := t0
		if call > 2 {
			at = t0.Add(8 * time.Hour)
		}
		return session.NewSession(browsertest.New("https://happyslap.tv/host"), at, "token"), nil
	}
	ctx := f.stopAfter(4)

	require.NoError(t, f.runner(t, testOptions).Run(ctx))
	assert.Equal(t, []time.Time{t0, t0.Add(8 * time.Hour)}, f.tracker.refreshed)
}

func TestRun_AnnouncesJoinCode(t *testing.T) {
	f := newFixture()
	core, logs := observer.New(zap.InfoLevel)
	ctx := f.stopAfter(1)

	r := New(f.sessions, f.strategy, f.lobby, f.tracker, testOptions, f.clk, zap.New(core))
	require.NoError(t, r.Run(ctx))

	banner := logs.FilterMessageSnippet("Join code: GAME1").All()
	require.Len(t, banner, 1)
	assert.Equal(t, "Movie Trivia", banner[0].ContextMap()["title"])
	assert.Equal(t, 1, logs.FilterMessage(site.Tagline).Len())

	for _, e := range logs.All() {
		assert.False(t, strings.Contains(e.Message, "retrying"), "no failures expected: %s", e.Message)
	}
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.runner(t, testOptions).Run(ctx))
	assert.Zero(t, f.clk.Slept())
}
