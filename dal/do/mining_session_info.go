package do

type MiningSessionInfo struct {
	ID              string  `gorm:"primaryKey;type:varchar(36)"`
	UserID          string  `gorm:"index:idx_session_user_id;type:varchar(36);not null"`
	CoinsEarned     float64 `gorm:"not null;default:0"`
	ClicksMade      int     `gorm:"not null;default:0"`
	SessionDuration int     `gorm:"not null;default:0"`
	Completed       bool    `gorm:"not null;default:false"`
	CreatedAt       string  `gorm:"type:varchar(40)"`
	UpdatedAt       string  `gorm:"type:varchar(40)"`
}
