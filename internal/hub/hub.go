package hub

import (
	"context"
	"time"

	"github.com/phamdoug22/happyslap-bot/internal/clock"
	"github.com/phamdoug22/happyslap-bot/internal/engine"
	"github.com/phamdoug22/happyslap-bot/internal/lobby"
	"github.com/phamdoug22/happyslap-bot/internal/selector"
	"github.com/phamdoug22/happyslap-bot/internal/types"
)

// Status values.
const (
	StateIdle      = "idle"
	StateSelecting = "selecting"
	StateHosting   = "hosting"
	StateStopped   = "stopped"
)

type HubMsg interface{ isHubMsg() }

type RoundStarted struct {
	RoundID string
}

type GameHosted struct {
	RoundID string
	Game    selector.LiveGame
}

type PhaseChanged struct {
	JoinCode string
	Phase    engine.Phase
}

type RoundFinished struct {
	RoundID string
	Result  lobby.Result
	Err     error
}

type SessionRefreshed struct {
	At time.Time
}

type GetStatus struct {
	Reply chan types.StatusResponse
}

type ShutdownHub struct{}

func (RoundStarted) isHubMsg()     {}
func (GameHosted) isHubMsg()       {}
func (PhaseChanged) isHubMsg()     {}
func (RoundFinished) isHubMsg()    {}
func (SessionRefreshed) isHubMsg() {}
func (GetStatus) isHubMsg()        {}
func (ShutdownHub) isHubMsg()      {}

// Hub owns the bot's status. Everything goes through the inbox so the
// runner, the lobby and HTTP readers never share memory.
type Hub struct {
	inbox  chan HubMsg
	status types.StatusResponse
	clock  clock.Clock
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, clk clock.Clock) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		status: types.StatusResponse{State: StateIdle, UpSince: clk.Now()},
		clock:  clk,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

// Done is closed once the hub stops.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case RoundStarted:
				h.status.State = StateSelecting
				h.status.RoundID = msg.RoundID
				h.status.Rounds++
				h.status.Lobby = nil

			case GameHosted:
				if msg.RoundID != h.status.RoundID {
					break
				}
				h.status.State = StateHosting
				h.status.Lobby = &types.LobbyStatus{
					JoinCode: msg.Game.JoinCode,
					Title:    msg.Game.Title,
					Strategy: msg.Game.Strategy,
					URL:      msg.Game.URL,
					Since:    h.clock.Now(),
				}

			case PhaseChanged:
				if lb := h.status.Lobby; lb != nil && lb.JoinCode == msg.JoinCode {
					lb.Phase = string(msg.Phase)
					lb.Since = h.clock.Now()
				}

			case RoundFinished:
				sum := &types.RoundSummary{
					RoundID:     msg.RoundID,
					JoinCode:    msg.Result.JoinCode,
					Exit:        string(msg.Result.Exit),
					GameStarted: msg.Result.GameStarted,
					EndedAt:     h.clock.Now(),
				}
				if msg.Err != nil {
					sum.Error = msg.Err.Error()
					h.status.Failures++
				}
				if msg.Result.GameStarted {
					h.status.GamesStarted++
				}
				h.status.LastRound = sum
				h.status.State = StateIdle
				h.status.Lobby = nil

			case SessionRefreshed:
				at := msg.At
				h.status.AuthenticatedAt = &at

			case GetStatus:
				msg.Reply <- h.snapshot()

			case ShutdownHub:
				h.cancel()
			}
		}
	}
}

// snapshot copies the status so callers never alias hub-owned pointers.
func (h *Hub) snapshot() types.StatusResponse {
	s := h.status
	if s.Lobby != nil {
		lb := *s.Lobby
		s.Lobby = &lb
	}
	if s.LastRound != nil {
		lr := *s.LastRound
		s.LastRound = &lr
	}
	if s.AuthenticatedAt != nil {
		at := *s.AuthenticatedAt
		s.AuthenticatedAt = &at
	}
	return s
}

// send drops the message once the hub has stopped.
func (h *Hub) send(m HubMsg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

// Status asks the hub for a copy of the current status.
func (h *Hub) Status(ctx context.Context) (types.StatusResponse, error) {
	reply := make(chan types.StatusResponse, 1)
	select {
	case h.inbox <- GetStatus{Reply: reply}:
	case <-h.ctx.Done():
		return types.StatusResponse{State: StateStopped}, nil
	case <-ctx.Done():
		return types.StatusResponse{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-h.ctx.Done():
		return types.StatusResponse{State: StateStopped}, nil
	case <-ctx.Done():
		return types.StatusResponse{}, ctx.Err()
	}
}

func (h *Hub) Shutdown() { h.send(ShutdownHub{}) }

// LobbyPhase implements lobby.Reporter.
func (h *Hub) LobbyPhase(joinCode string, phase engine.Phase) {
	h.send(PhaseChanged{JoinCode: joinCode, Phase: phase})
}

func (h *Hub) RoundStarted(roundID string) { h.send(RoundStarted{RoundID: roundID}) }

func (h *Hub) GameHosted(roundID string, game selector.LiveGame) {
	h.send(GameHosted{RoundID: roundID, Game: game})
}

func (h *Hub) RoundFinished(roundID string, res lobby.Result, err error) {
	h.send(RoundFinished{RoundID: roundID, Result: res, Err: err})
}

func (h *Hub) SessionRefreshed(at time.Time) { h.send(SessionRefreshed{At: at}) }
