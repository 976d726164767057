package do

type UserProfileInfo struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	UserID string `gorm:"uniqueIndex:unique_idx_profile_user_id;type:varchar(36);not null"`
	// Username and Email may be absent until registration completes.
	Username         *string `gorm:"type:varchar(100)"`
	Email            *string `gorm:"type:varchar(100)"`
	TaskReward       float64 `gorm:"not null;default:0"`
	MiningReward     float64 `gorm:"not null;default:0"`
	ReferralReward   float64 `gorm:"not null;default:0"`
	MiningPower      float64 `gorm:"not null"`
	CurrentStreak    int     `gorm:"not null;default:0"`
	LongestStreak    int     `gorm:"not null;default:0"`
	LastLoginDate    *string `gorm:"type:varchar(40)"`
	ReferralCode     *string `gorm:"type:varchar(20)"`
	ReferredBy       *string `gorm:"type:varchar(20)"`
	TotalReferrals   int     `gorm:"not null;default:0"`
	MaxDailyEarnings float64 `gorm:"not null;default:0"`
	TodayEarnings    float64 `gorm:"not null;default:0"`
	CreatedAt        string  `gorm:"type:varchar(40)"`
	UpdatedAt        string  `gorm:"type:varchar(40)"`
}
