package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/engine"
	"github.com/phamdoug22/happyslap-bot/internal/selector"
	"github.com/phamdoug22/happyslap-bot/internal/site"
)

var ErrStaleLobby = errors.New("lobby player list never reset")

// Overlay texts.
const (
	labelStarting = "Starting in"
	labelRestart  = "Finding new game in"
	labelEmpty    = "Empty lobby - Finding new game in"
	labelNoStart  = "Could not start - Finding new game in"
	textRunning   = "Game in progress..."
)

type Timing struct {
	PollInterval     time.Duration
	BaselineInterval time.Duration
	BaselineTimeout  time.Duration
	EmptyTimeout     time.Duration
	StartCountdown   time.Duration
	EmptyCountdown   time.Duration
	RestartCountdown time.Duration
	StartTimeout     time.Duration
}

// Reporter is told about every phase change. It must not block for long.
type Reporter interface {
	LobbyPhase(joinCode string, phase engine.Phase)
}

type Result struct {
	JoinCode    string
	Exit        engine.Exit
	GameStarted bool
	StartedAt   time.Time
	EndedAt     time.Time
}

// Orchestrator watches one lobby from empty to ended. It polls; the page
// never pushes anything to us.
type Orchestrator struct {
	timing   Timing
	clock    clock.Clock
	reporter Reporter
	log      *zap.Logger
}

func NewOrchestrator(timing Timing, clk clock.Clock, reporter Reporter, log *zap.Logger) *Orchestrator {
	return &Orchestrator{timing: timing, clock: clk, reporter: reporter, log: log}
}

// lobbyRun is the per-lobby state of one Run call.
type lobbyRun struct {
	driver  browser.Driver
	overlay Overlay
	game    selector.LiveGame
	log     *zap.Logger
	state   engine.State
	start   browser.Element
	result  Result
}

// Run drives the lobby on d until it ends. Errors are returned as-is; the
// caller abandons the round.
func (o *Orchestrator) Run(ctx context.Context, d browser.Driver, game selector.LiveGame) (Result, error) {
	r := &lobbyRun{
		driver:  d,
		overlay: Overlay{driver: d},
		game:    game,
		log:     o.log.With(zap.String("join_code", game.JoinCode)),
		result:  Result{JoinCode: game.JoinCode},
	}

	if err := r.overlay.Inject(ctx); err != nil {
		return r.result, err
	}
	if err := o.awaitEmptyBaseline(ctx, r); err != nil {
		return r.result, err
	}

	r.state = engine.NewState(o.clock.Now(), engine.Rules{
		EmptyTimeout: o.timing.EmptyTimeout,
		StartTimeout: o.timing.StartTimeout,
	})
	o.report(r, r.state.Phase)
	r.log.Info("lobby ready - waiting for players")

	for {
		obs, err := o.observe(ctx, r)
		if err != nil {
			return r.result, err
		}
		events, err := o.apply(r, engine.Command{Type: engine.CmdObserve, At: o.clock.Now(), Observation: obs})
		if err != nil {
			return r.result, err
		}

		repoll, err := o.handle(ctx, r, events)
		if err != nil {
			return r.result, err
		}
		if r.state.Terminal() {
			r.result.Exit = r.state.Exit
			r.result.EndedAt = o.clock.Now()
			return r.result, nil
		}
		if repoll {
			continue
		}
		if err := o.clock.Sleep(ctx, o.timing.PollInterval); err != nil {
			return r.result, err
		}
	}
}

// handle carries out the side effects of events. repoll asks for an
// immediate observation without the poll sleep.
func (o *Orchestrator) handle(ctx context.Context, r *lobbyRun, events []engine.Event) (repoll bool, err error) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtGameEnded:
			r.log.Info("game ended - showing scores")
			return false, r.overlay.Countdown(ctx, o.clock, o.timing.RestartCountdown, labelRestart)

		case engine.EvtLobbyAbandoned:
			r.log.Info("lobby timeout - no players", zap.Duration("waited", o.clock.Now().Sub(r.state.EnteredAt)))
			return false, r.overlay.Countdown(ctx, o.clock, o.timing.EmptyCountdown, labelEmpty)

		case engine.EvtStartAbandoned:
			r.log.Warn("start control never appeared", zap.Duration("waited", o.timing.StartTimeout))
			return false, r.overlay.Countdown(ctx, o.clock, o.timing.EmptyCountdown, labelNoStart)

		case engine.EvtPlayerJoined:
			r.log.Info("first player joined - starting countdown", zap.Int("players", ev.Players))
			if err := r.overlay.Countdown(ctx, o.clock, o.timing.StartCountdown, labelStarting); err != nil {
				return false, err
			}
			if _, err := o.apply(r, engine.Command{Type: engine.CmdCountdownElapsed, At: o.clock.Now()}); err != nil {
				return false, err
			}
			return true, nil

		case engine.EvtStartRequested:
			if err := o.startGame(ctx, r); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func (o *Orchestrator) startGame(ctx context.Context, r *lobbyRun) error {
	if err := r.overlay.Show(ctx, textRunning); err != nil {
		return err
	}
	if err := r.start.Click(ctx); err != nil {
		return fmt.Errorf("click start: %w", err)
	}
	now := o.clock.Now()
	if _, err := o.apply(r, engine.Command{Type: engine.CmdStartIssued, At: now}); err != nil {
		return err
	}
	r.result.GameStarted = true
	r.result.StartedAt = now
	r.log.Info("game started")
	return nil
}

// observe polls the page. The restart control comes first; once a game is
// running nothing but the restart control is looked at.
func (o *Orchestrator) observe(ctx context.Context, r *lobbyRun) (engine.Observation, error) {
	var obs engine.Observation

	restart, err := r.driver.Query(ctx, site.RestartButton)
	if err != nil {
		return obs, err
	}
	obs.RestartVisible = len(restart) > 0
	if obs.RestartVisible || r.state.Phase == engine.PhaseInProgress {
		return obs, nil
	}

	if obs.Players, err = playerCount(ctx, r.driver); err != nil {
		return obs, err
	}

	r.start = nil
	if r.state.Phase == engine.PhaseStarting {
		starts, err := r.driver.Query(ctx, site.StartButton)
		if err != nil {
			return obs, err
		}
		if len(starts) > 0 {
			r.start = starts[0]
			obs.StartVisible = true
		}
	}
	return obs, nil
}

func (o *Orchestrator) apply(r *lobbyRun, cmd engine.Command) ([]engine.Event, error) {
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		return nil, fmt.Errorf("lobby %s: %w", r.game.JoinCode, err)
	}
	prev := r.state.Phase
	r.state = next
	if next.Phase != prev {
		r.log.Debug("phase", zap.String("from", string(prev)), zap.String("to", string(next.Phase)))
		o.report(r, next.Phase)
	}
	return events, nil
}

func (o *Orchestrator) report(r *lobbyRun, p engine.Phase) {
	if o.reporter != nil {
		o.reporter.LobbyPhase(r.game.JoinCode, p)
	}
}

// awaitEmptyBaseline waits out players left over from a previous occupant
// so the lobby starts from a verified-empty list.
func (o *Orchestrator) awaitEmptyBaseline(ctx context.Context, r *lobbyRun) error {
	n, err := playerCount(ctx, r.driver)
	if err != nil || n == 0 {
		return err
	}
	r.log.Info("waiting for player list to reset", zap.Int("players", n))

	deadline := o.clock.Now().Add(o.timing.BaselineTimeout)
	for n > 0 {
		if o.timing.BaselineTimeout > 0 && !o.clock.Now().Before(deadline) {
			return fmt.Errorf("%w: %d players after %s", ErrStaleLobby, n, o.timing.BaselineTimeout)
		}
		if err := o.clock.Sleep(ctx, o.timing.BaselineInterval); err != nil {
			return err
		}
		if n, err = playerCount(ctx, r.driver); err != nil {
			return err
		}
	}
	return nil
}

func playerCount(ctx context.Context, d browser.Driver) (int, error) {
	tiles, err := d.Query(ctx, site.PlayerTiles)
	if err != nil {
		return 0, err
	}
	return len(tiles), nil
}
