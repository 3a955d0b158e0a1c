package engine

import (
	"errors"
	"time"
)

var ErrLobbyEnded = errors.New("lobby already ended")
var ErrIllegalTransition = errors.New("illegal phase transition")
var ErrAlreadyStarted = errors.New("game already started")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseEmpty         Phase = "empty"
	PhasePlayerPresent Phase = "player_present"
	PhaseStarting      Phase = "starting"
	PhaseInProgress    Phase = "in_progress"
	PhaseEnded         Phase = "ended"
)

// Exit says why a lobby reached PhaseEnded.
type Exit string

const (
	ExitNone        Exit = ""
	ExitGameEnded   Exit = "game_ended"
	ExitAbandoned   Exit = "abandoned"
	ExitStartFailed Exit = "start_failed"
)

type Rules struct {
	EmptyTimeout time.Duration
	StartTimeout time.Duration // 0 waits for the start control forever
}

type State struct {
	Phase         Phase
	EnteredAt     time.Time
	StartingSince time.Time
	PlayerJoined  bool
	GameStarted   bool
	Exit          Exit
	Rules         Rules
}

// Observation is everything one poll of the lobby page saw.
type Observation struct {
	Players        int
	RestartVisible bool
	StartVisible   bool
}

type CommandType string

const (
	CmdObserve          CommandType = "Observe"
	CmdCountdownElapsed CommandType = "CountdownElapsed"
	CmdStartIssued      CommandType = "StartIssued"
)

/*
	CmdObserve          -> EvtGameEnded | EvtPlayerJoined | EvtLobbyAbandoned
	                       | EvtStartRequested | EvtStartAbandoned | nothing
	CmdCountdownElapsed -> (PlayerPresent -> Starting, no event)
	CmdStartIssued      -> EvtGameStarted
*/

type Command struct {
	Type        CommandType
	At          time.Time
	Observation Observation
}

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtStartRequested EventType = "StartRequested"
	EvtGameStarted    EventType = "GameStarted"
	EvtGameEnded      EventType = "GameEnded"
	EvtLobbyAbandoned EventType = "LobbyAbandoned"
	EvtStartAbandoned EventType = "StartAbandoned"
)

type Event struct {
	Type    EventType
	Players int
}

// Apply is the whole lobby policy. It never mutates s; the returned State is
// the successor.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseEnded {
		return nil, s, ErrLobbyEnded
	}

	switch cmd.Type {
	case CmdObserve:
		return observe(s, cmd.At, cmd.Observation)

	case CmdCountdownElapsed:
		if !canTransition(s.Phase, PhaseStarting) {
			return nil, s, ErrIllegalTransition
		}
		next := s
		next.Phase = PhaseStarting
		next.StartingSince = cmd.At
		return nil, next, nil

	case CmdStartIssued:
		if s.GameStarted {
			return nil, s, ErrAlreadyStarted
		}
		if !canTransition(s.Phase, PhaseInProgress) {
			return nil, s, ErrIllegalTransition
		}
		next := s
		next.GameStarted = true
		next.Phase = PhaseInProgress
		return []Event{{Type: EvtGameStarted}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func observe(s State, at time.Time, obs Observation) ([]Event, State, error) {
	next := s

	// The page can show the end of a game whatever we think the phase is.
	if obs.RestartVisible {
		return end(next, ExitGameEnded, EvtGameEnded, obs)
	}

	switch s.Phase {
	case PhaseEmpty:
		if obs.Players > 0 && !s.PlayerJoined {
			next.PlayerJoined = true
			next.Phase = PhasePlayerPresent
			return []Event{{Type: EvtPlayerJoined, Players: obs.Players}}, next, nil
		}
		if !s.PlayerJoined && obs.Players == 0 && at.Sub(s.EnteredAt) > s.Rules.EmptyTimeout {
			return end(next, ExitAbandoned, EvtLobbyAbandoned, obs)
		}
		return nil, next, nil

	case PhaseStarting:
		if !s.GameStarted && obs.StartVisible {
			return []Event{{Type: EvtStartRequested, Players: obs.Players}}, next, nil
		}
		if s.Rules.StartTimeout > 0 && at.Sub(s.StartingSince) >= s.Rules.StartTimeout {
			return end(next, ExitStartFailed, EvtStartAbandoned, obs)
		}
		return nil, next, nil

	default:
		// PlayerPresent waits on its countdown; InProgress only watches for
		// the restart control.
		return nil, next, nil
	}
}

func end(s State, exit Exit, evt EventType, obs Observation) ([]Event, State, error) {
	s.Phase = PhaseEnded
	s.Exit = exit
	return []Event{{Type: evt, Players: obs.Players}}, s, nil
}
