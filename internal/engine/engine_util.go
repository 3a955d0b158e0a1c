package engine

import (
	"slices"
	"time"
)

func NewState(enteredAt time.Time, rules Rules) State {
	return State{
		Phase:     PhaseEmpty,
		EnteredAt: enteredAt,
		Rules:     rules,
	}
}

func canTransition(from, to Phase) bool {
	return slices.Contains(Transitions[from], to)
}

// Terminal reports whether no further commands will be accepted.
func (s State) Terminal() bool { return s.Phase == PhaseEnded }
