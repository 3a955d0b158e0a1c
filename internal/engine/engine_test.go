package engine

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func newLobby() State {
	return NewState(t0, Rules{EmptyTimeout: 600 * time.Second, StartTimeout: 5 * time.Minute})
}

func observeAt(s State, sec int, obs Observation) ([]Event, State, error) {
	return Apply(s, Command{Type: CmdObserve, At: t0.Add(time.Duration(sec) * time.Second), Observation: obs})
}

func countEvents(events []Event, eventType EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestPlayerJoinedLatchFiresOnce(t *testing.T) {
	s := newLobby()
	var all []Event

	for i, players := range []int{0, 1, 0, 1} {
		events, next, err := observeAt(s, i, Observation{Players: players})
		if err != nil {
			t.Fatalf("tick %d: unexpected err %v", i, err)
		}
		all = append(all, events...)
		s = next
	}

	if n := countEvents(all, EvtPlayerJoined); n != 1 {
		t.Fatalf("want exactly one PlayerJoined, got %d (%+v)", n, all)
	}
	if s.Phase != PhasePlayerPresent || !s.PlayerJoined {
		t.Fatalf("want player_present with latch set, got %+v", s)
	}
}

func TestLatchHoldsEvenIfPhaseIsEmpty(t *testing.T) {
	s := newLobby()
	s.PlayerJoined = true

	events, next, err := observeAt(s, 1, Observation{Players: 3})
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if len(events) != 0 || next.Phase != PhaseEmpty {
		t.Fatalf("latched lobby must not re-trigger, got events=%+v phase=%v", events, next.Phase)
	}
}

func TestEmptyTimeout(t *testing.T) {
	cases := []struct {
		name      string
		sec       int
		players   int
		joined    bool
		wantEvt   bool
		wantPhase Phase
	}{
		{name: "just inside timeout", sec: 600, wantPhase: PhaseEmpty},
		{name: "past timeout", sec: 601, wantEvt: true, wantPhase: PhaseEnded},
		{name: "player arrives at the wire", sec: 601, players: 1, wantPhase: PhasePlayerPresent},
		{name: "latched lobby never times out", sec: 5000, joined: true, wantPhase: PhaseEmpty},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newLobby()
			s.PlayerJoined = tc.joined
			events, next, err := observeAt(s, tc.sec, Observation{Players: tc.players})
			if err != nil {
				t.Fatalf("unexpected err %v", err)
			}
			if got := containsEvent(events, EvtLobbyAbandoned); got != tc.wantEvt {
				t.Fatalf("LobbyAbandoned: got %v, want %v", got, tc.wantEvt)
			}
			if next.Phase != tc.wantPhase {
				t.Fatalf("phase: got %v, want %v", next.Phase, tc.wantPhase)
			}
			if tc.wantEvt && next.Exit != ExitAbandoned {
				t.Fatalf("exit: got %q, want %q", next.Exit, ExitAbandoned)
			}
		})
	}
}

func TestRestartControlSupersedesEveryPhase(t *testing.T) {
	for _, phase := range []Phase{PhaseEmpty, PhasePlayerPresent, PhaseStarting, PhaseInProgress} {
		t.Run(string(phase), func(t *testing.T) {
			s := newLobby()
			s.Phase = phase
			events, next, err := observeAt(s, 2000, Observation{Players: 0, RestartVisible: true, StartVisible: true})
			if err != nil {
				t.Fatalf("unexpected err %v", err)
			}
			if len(events) != 1 || events[0].Type != EvtGameEnded {
				t.Fatalf("want only GameEnded, got %+v", events)
			}
			if next.Phase != PhaseEnded || next.Exit != ExitGameEnded {
				t.Fatalf("want ended/game_ended, got %v/%v", next.Phase, next.Exit)
			}
		})
	}
}

func TestStartIsRequestedOnlyWhileStarting(t *testing.T) {
	s := newLobby()
	obs := Observation{Players: 1, StartVisible: true}

	// Empty -> PlayerPresent
	_, s, _ = observeAt(s, 5, obs)
	events, s, _ := observeAt(s, 6, obs)
	if containsEvent(events, EvtStartRequested) {
		t.Fatalf("start must wait for the countdown")
	}

	_, s, err := Apply(s, Command{Type: CmdCountdownElapsed, At: t0.Add(55 * time.Second)})
	if err != nil {
		t.Fatalf("countdown elapsed: %v", err)
	}
	if s.Phase != PhaseStarting {
		t.Fatalf("want starting, got %v", s.Phase)
	}

	events, s, _ = observeAt(s, 55, obs)
	if !containsEvent(events, EvtStartRequested) {
		t.Fatalf("want StartRequested, got %+v", events)
	}

	events, s, err = Apply(s, Command{Type: CmdStartIssued, At: t0.Add(55 * time.Second)})
	if err != nil || !containsEvent(events, EvtGameStarted) {
		t.Fatalf("start issued: events=%+v err=%v", events, err)
	}
	if s.Phase != PhaseInProgress || !s.GameStarted {
		t.Fatalf("want in_progress with game started, got %+v", s)
	}

	// The start control can stay clickable; nothing else may fire.
	for sec := 56; sec < 120; sec++ {
		events, s, _ = observeAt(s, sec, obs)
		if len(events) != 0 {
			t.Fatalf("tick %d: in-progress lobby emitted %+v", sec, events)
		}
	}

	_, _, err = Apply(s, Command{Type: CmdStartIssued})
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("want ErrAlreadyStarted, got %v", err)
	}
}

func TestStartTimeout(t *testing.T) {
	s := newLobby()
	s.Phase = PhasePlayerPresent
	s.PlayerJoined = true
	_, s, _ = Apply(s, Command{Type: CmdCountdownElapsed, At: t0})

	events, s, _ := observeAt(s, 299, Observation{Players: 1})
	if len(events) != 0 {
		t.Fatalf("unexpected events before timeout: %+v", events)
	}
	events, s, _ = observeAt(s, 300, Observation{Players: 1})
	if !containsEvent(events, EvtStartAbandoned) || s.Exit != ExitStartFailed {
		t.Fatalf("want StartAbandoned, got events=%+v state=%+v", events, s)
	}
}

func TestAbandonedLobbyNeverStarts(t *testing.T) {
	s := newLobby()
	_, s, _ = observeAt(s, 601, Observation{})
	if s.Phase != PhaseEnded {
		t.Fatalf("want ended, got %v", s.Phase)
	}

	for _, cmd := range []Command{
		{Type: CmdObserve, Observation: Observation{Players: 1, StartVisible: true}},
		{Type: CmdCountdownElapsed},
		{Type: CmdStartIssued},
	} {
		_, next, err := Apply(s, cmd)
		if !errors.Is(err, ErrLobbyEnded) {
			t.Fatalf("%s: want ErrLobbyEnded, got %v", cmd.Type, err)
		}
		if next.GameStarted || next.Phase == PhaseInProgress {
			t.Fatalf("%s: abandoned lobby reported in progress", cmd.Type)
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	cases := []struct {
		name  string
		phase Phase
		cmd   CommandType
		want  error
	}{
		{name: "countdown from empty", phase: PhaseEmpty, cmd: CmdCountdownElapsed, want: ErrIllegalTransition},
		{name: "countdown from starting", phase: PhaseStarting, cmd: CmdCountdownElapsed, want: ErrIllegalTransition},
		{name: "start from empty", phase: PhaseEmpty, cmd: CmdStartIssued, want: ErrIllegalTransition},
		{name: "start from player present", phase: PhasePlayerPresent, cmd: CmdStartIssued, want: ErrIllegalTransition},
		{name: "unknown command", phase: PhaseEmpty, cmd: "Dance", want: ErrUnsupportedCommand},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newLobby()
			s.Phase = tc.phase
			_, next, err := Apply(s, Command{Type: tc.cmd})
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if next.Phase != tc.phase {
				t.Fatalf("state changed on error: %v -> %v", tc.phase, next.Phase)
			}
		})
	}
}

func TestTransitionsTable(t *testing.T) {
	for from, tos := range Transitions {
		for _, to := range tos {
			if !canTransition(from, to) {
				t.Fatalf("%s -> %s listed but rejected", from, to)
			}
		}
		if from != PhaseEnded && !canTransition(from, PhaseEnded) {
			t.Fatalf("%s must be able to end", from)
		}
	}
	if canTransition(PhaseInProgress, PhaseEmpty) {
		t.Fatalf("a running game must never return to empty")
	}
}

func containsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
