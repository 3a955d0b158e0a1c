package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/lobby"
	"github.com/phamdoug22/happyslap-bot/internal/selector"
	"github.com/phamdoug22/happyslap-bot/internal/session"
	"github.com/phamdoug22/happyslap-bot/internal/site"
)

var ErrTooManyAuthFailures = errors.New("too many consecutive authentication failures")

type Sessions interface {
	Ensure(ctx context.Context, force bool) (*session.Session, error)
}

type Lobby interface {
	Run(ctx context.Context, d browser.Driver, game selector.LiveGame) (lobby.Result, error)
}

// Tracker receives round progress. The hub implements it.
type Tracker interface {
	RoundStarted(roundID string)
	GameHosted(roundID string, game selector.LiveGame)
	RoundFinished(roundID string, res lobby.Result, err error)
	SessionRefreshed(at time.Time)
}

type Options struct {
	RoundPause      time.Duration
	ErrorBackoff    time.Duration
	MaxAuthFailures int // 0 retries forever
}

type Runner struct {
	sessions Sessions
	strategy selector.Strategy
	lobby    Lobby
	tracker  Tracker
	opts     Options
	clock    clock.Clock
	log      *zap.Logger

	lastAuth     time.Time
	authFailures int
}

func New(sessions Sessions, strategy selector.Strategy, lb Lobby, tracker Tracker, opts Options, clk clock.Clock, log *zap.Logger) *Runner {
	return &Runner{
		sessions: sessions,
		strategy: strategy,
		lobby:    lb,
		tracker:  tracker,
		opts:     opts,
		clock:    clk,
		log:      log,
	}
}

// Run hosts rounds back to back until ctx is cancelled. A failed round is
// logged and abandoned; only the auth circuit breaker ends Run with an error.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("host loop starting", zap.String("strategy", r.strategy.Name()))
	for {
		err := r.round(ctx)
		if ctx.Err() != nil {
			r.log.Info("host loop stopped")
			return nil
		}

		pause := r.opts.RoundPause
		if err != nil {
			if errors.Is(err, ErrTooManyAuthFailures) {
				return err
			}
			r.log.Error("round failed - retrying", zap.Error(err), zap.Duration("backoff", r.opts.ErrorBackoff))
			pause = r.opts.ErrorBackoff
		}
		if err := r.clock.Sleep(ctx, pause); err != nil {
			r.log.Info("host loop stopped")
			return nil
		}
	}
}

func (r *Runner) round(ctx context.Context) (err error) {
	id := uuid.NewString()
	log := r.log.With(zap.String("round", id))
	r.tracker.RoundStarted(id)

	var res lobby.Result
	defer func() { r.tracker.RoundFinished(id, res, err) }()

	sess, err := r.ensure(ctx)
	if err != nil {
		return err
	}

	game, err := r.strategy.Select(ctx, sess)
	if err != nil {
		return fmt.Errorf("select game: %w", err)
	}
	r.tracker.GameHosted(id, game)
	announce(log, game)

	res, err = r.lobby.Run(ctx, sess.Driver, game)
	if err != nil {
		return fmt.Errorf("lobby %s: %w", game.JoinCode, err)
	}
	log.Info("round finished",
		zap.String("join_code", res.JoinCode),
		zap.String("exit", string(res.Exit)),
		zap.Bool("game_started", res.GameStarted))
	return nil
}

func (r *Runner) ensure(ctx context.Context) (*session.Session, error) {
	sess, err := r.sessions.Ensure(ctx, false)
	if err != nil {
		if !errors.Is(err, session.ErrAuthentication) {
			return nil, err
		}
		r.authFailures++
		if r.opts.MaxAuthFailures > 0 && r.authFailures >= r.opts.MaxAuthFailures {
			return nil, fmt.Errorf("%w (%d): %w", ErrTooManyAuthFailures, r.authFailures, err)
		}
		return nil, err
	}
	r.authFailures = 0
	if !sess.AuthenticatedAt.Equal(r.lastAuth) {
		r.lastAuth = sess.AuthenticatedAt
		r.tracker.SessionRefreshed(sess.AuthenticatedAt)
	}
	return sess, nil
}

func announce(log *zap.Logger, game selector.LiveGame) {
	log.Info("New game started! Join code: "+game.JoinCode,
		zap.String("title", game.Title),
		zap.String("url", game.URL),
		zap.String("strategy", game.Strategy))
	log.Info(site.Tagline)
}
