package engine

// Transitions lists the legal successors of each phase. Ended is reachable
// from everywhere because the game can end underneath us.
var Transitions = map[Phase][]Phase{
	PhaseEmpty:         {PhasePlayerPresent, PhaseEnded},
	PhasePlayerPresent: {PhaseStarting, PhaseEnded},
	PhaseStarting:      {PhaseInProgress, PhaseEnded},
	PhaseInProgress:    {PhaseEnded},
	PhaseEnded:         {},
}
