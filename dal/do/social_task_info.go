package do

type SocialTaskInfo struct {
	ID                 string  `gorm:"primaryKey;type:varchar(36)"`
	Title              string  `gorm:"type:varchar(200);not null"`
	Description        string  `gorm:"type:varchar(1000)"`
	Platform           string  `gorm:"type:varchar(40)"`
	TaskType           string  `gorm:"type:varchar(40)"`
	RewardCoins        float64 `gorm:"not null;default:0"`
	ActionURL          string  `gorm:"type:varchar(500)"`
	VerificationMethod string  `gorm:"type:varchar(40)"`
	IsActive           bool    `gorm:"not null"`
	SortOrder          int     `gorm:"not null;default:0"`
	CreatedAt          string  `gorm:"type:varchar(40)"`
	UpdatedAt          string  `gorm:"type:varchar(40)"`
}
