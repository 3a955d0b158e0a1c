package types

import "time"

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State           string        `json:"state"` // "idle" | "selecting" | "hosting" | "stopped"
	RoundID         string        `json:"round_id,omitempty"`
	Rounds          int           `json:"rounds"`
	GamesStarted    int           `json:"games_started"`
	Failures        int           `json:"failures"`
	Lobby           *LobbyStatus  `json:"lobby,omitempty"`
	LastRound       *RoundSummary `json:"last_round,omitempty"`
	AuthenticatedAt *time.Time    `json:"authenticated_at,omitempty"`
	UpSince         time.Time     `json:"up_since"`
}

type LobbyStatus struct {
	JoinCode string    `json:"join_code"`
	Title    string    `json:"title,omitempty"`
	Strategy string    `json:"strategy"`
	URL      string    `json:"url"`
	Phase    string    `json:"phase,omitempty"`
	Since    time.Time `json:"since"`
}

type RoundSummary struct {
	RoundID     string    `json:"round_id"`
	JoinCode    string    `json:"join_code,omitempty"`
	Exit        string    `json:"exit,omitempty"`
	GameStarted bool      `json:"game_started"`
	Error       string    `json:"error,omitempty"`
	EndedAt     time.Time `json:"ended_at"`
}
