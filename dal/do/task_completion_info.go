package do

type TaskCompletionInfo struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	UserID string `gorm:"uniqueIndex:unique_idx_completion_user_task;type:varchar(36);not null"`
	TaskID string `gorm:"uniqueIndex:unique_idx_completion_user_task;type:varchar(36);not null"`
	Status string `gorm:"type:varchar(20);not null"`
	Proof  string `gorm:"type:varchar(1000)"`
	// CompletedAt is set once at creation; VerifiedAt when the backend
	// settles the verification outcome.
	CompletedAt string  `gorm:"type:varchar(40)"`
	VerifiedAt  *string `gorm:"type:varchar(40)"`
	UpdatedAt   string  `gorm:"type:varchar(40)"`
}
