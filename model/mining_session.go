package model

// MiningSession records one mining run. A session is created locally when
// the run starts (zero duration, zero coins), updated while it progresses,
// and becomes immutable once a sync confirms its completion.
type MiningSession struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	CoinsEarned     float64 `json:"coins_earned"`
	ClicksMade      int     `json:"clicks_made"`
	SessionDuration int     `json:"session_duration"`
	Completed       bool    `json:"completed"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}
