package model

// UserProfile is the canonical per-user record. The remote backend owns it;
// the local copy is a cache with an independent lifecycle.
//
// Timestamps are RFC3339 strings as delivered by the backend, so a
// lexicographic comparison is also a chronological one. UpdatedAt is the
// authority signal for conflict resolution and must never decrease across
// writes from the same source.
type UserProfile struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	Username         string  `json:"username"`
	Email            string  `json:"email"`
	TaskReward       float64 `json:"task_reward"`
	MiningReward     float64 `json:"mining_reward"`
	ReferralReward   float64 `json:"referral_reward"`
	MiningPower      float64 `json:"mining_power"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	LastLoginDate    string  `json:"last_login_date"`
	ReferralCode     string  `json:"referral_code"`
	ReferredBy       string  `json:"referred_by"`
	TotalReferrals   int     `json:"total_referrals"`
	MaxDailyEarnings float64 `json:"max_daily_earnings"`
	TodayEarnings    float64 `json:"today_earnings"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// TotalCoins is the profile balance. It is always derived from the three
// reward accumulators and never stored on its own.
func (p *UserProfile) TotalCoins() float64 {
	return p.TaskReward + p.MiningReward + p.ReferralReward
}
