package selector

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/phamdoug22/happyslap-bot/internal/catalog"
	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/session"
	"github.com/phamdoug22/happyslap-bot/internal/site"
)

type GameLister interface {
	ListGames(ctx context.Context, token string, q catalog.Query) ([]catalog.Game, error)
}

type PartyChannel interface {
	Connect(ctx context.Context, token string) error
	Invoke(ctx context.Context, target string, args []any, out any) error
}

// Catalog hosts a game without the discover UI: it lists games through the
// API, creates a party over the realtime channel and navigates straight to
// the new lobby.
type Catalog struct {
	site    site.Site
	games   GameLister
	parties PartyChannel
	query   catalog.Query
	timing  Timing
	pick    Picker
	clock   clock.Clock
	log     *zap.Logger
}

func NewCatalog(s site.Site, games GameLister, parties PartyChannel, q catalog.Query, timing Timing, pick Picker, clk clock.Clock, log *zap.Logger) *Catalog {
	return &Catalog{
		site:    s,
		games:   games,
		parties: parties,
		query:   q,
		timing:  timing,
		pick:    pick,
		clock:   clk,
		log:     log,
	}
}

func (c *Catalog) Name() string { return "catalog" }

func (c *Catalog) Select(ctx context.Context, s *session.Session) (LiveGame, error) {
	c.log.Info("finding a trivia game", zap.String("strategy", c.Name()))

	token, err := s.BearerToken(ctx)
	if err != nil {
		return LiveGame{}, err
	}

	games, err := c.games.ListGames(ctx, token, c.query)
	if err != nil {
		return LiveGame{}, fmt.Errorf("%w: %w", ErrNoGamesFound, err)
	}
	cands := make([]Candidate, 0, len(games))
	for i := range games {
		cands = append(cands, Candidate{Title: games[i].Title, GameType: games[i].GameType, Record: &games[i]})
	}
	cand, err := pick(c.pick, cands)
	if err != nil {
		return LiveGame{}, err
	}
	game := cand.Record
	c.log.Info("selected game", zap.String("title", game.Title), zap.String("game_id", game.ID), zap.Int("candidates", len(cands)))

	// Cached client state from the previous round breaks the next bootstrap.
	if _, err := s.Driver.Evaluate(ctx, site.ClearStorageScript, site.StaleStorageKeys); err != nil {
		return LiveGame{}, fmt.Errorf("clear stale client state: %w", err)
	}

	partyID, err := c.createParty(ctx, token, game.GameType)
	if err != nil {
		return LiveGame{}, err
	}

	url := c.site.GameURL(game.GameType, partyID, game.ID)
	if err := s.Driver.Navigate(ctx, url); err != nil {
		return LiveGame{}, err
	}
	if err := settle(ctx, s.Driver, c.clock, c.timing); err != nil {
		return LiveGame{}, err
	}

	return LiveGame{
		JoinCode:  partyID,
		URL:       url,
		Title:     game.Title,
		Strategy:  c.Name(),
		CreatedAt: c.clock.Now(),
	}, nil
}

func (c *Catalog) createParty(ctx context.Context, token, gameType string) (string, error) {
	if c.timing.PartyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timing.PartyTimeout)
		defer cancel()
	}

	if err := c.parties.Connect(ctx, token); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPartyCreation, err)
	}
	var raw json.RawMessage
	args := []any{map[string]string{"gameType": gameType}}
	if err := c.parties.Invoke(ctx, "createParty", args, &raw); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPartyCreation, err)
	}
	id, err := partyID(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPartyCreation, err)
	}
	c.log.Info("party created", zap.String("party_id", id))
	return id, nil
}

// partyID accepts either {"partyId": "..."} or a bare JSON string.
func partyID(raw json.RawMessage) (string, error) {
	var obj struct {
		PartyID string `json:"partyId"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.PartyID != "" {
		return obj.PartyID, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("no party id in result %s", string(raw))
}
