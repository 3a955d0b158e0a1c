// Package selector finds a hostable trivia game and leaves the session's page
// on its freshly created lobby.
package selector

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/phamdoug22/happyslap-bot/internal/browser"
	"github.com/phamdoug22/happyslap-bot/internal/catalog"
	"github.com/phamdoug22/happyslap-bot/internal/session"
)

var (
	ErrNoGamesFound      = errors.New("no trivia games found")
	ErrNavigationTimeout = errors.New("lobby page never reached")
	ErrPartyCreation     = errors.New("party creation failed")
	ErrNoJoinCode        = errors.New("lobby shows no join code")
)

// LiveGame is a hosted game whose lobby page is loaded in the session.
type LiveGame struct {
	JoinCode  string
	URL       string
	Title     string
	Strategy  string
	CreatedAt time.Time
}

// Candidate is one hostable game seen during selection. Exactly one of
// Element (discovery UI) or Record (catalog) is set.
type Candidate struct {
	Title    string
	GameType string
	Element  browser.Element
	Record   *catalog.Game
}

type Strategy interface {
	Name() string
	Select(ctx context.Context, s *session.Session) (LiveGame, error)
}

// Picker returns an index in [0, n). n is always > 0.
type Picker func(n int) int

func UniformPicker(n int) int { return rand.IntN(n) }

func pick(p Picker, cands []Candidate) (Candidate, error) {
	if len(cands) == 0 {
		return Candidate{}, ErrNoGamesFound
	}
	if p == nil {
		p = UniformPicker
	}
	return cands[p(len(cands))], nil
}

// Timing shared by both strategies.
type Timing struct {
	WaitTimeout    time.Duration
	SearchDebounce time.Duration
	SettleDelay    time.Duration
	PartyTimeout   time.Duration
}
