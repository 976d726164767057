package model

// Completion states of a task completion record.
const (
	CompletionPending  = "pending"
	CompletionVerified = "verified"
	CompletionRejected = "rejected"
)

// SocialTask is a global task definition shared by all users. Definitions
// are read-mostly reference data fetched from the backend and cached.
type SocialTask struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Platform           string  `json:"platform"`
	TaskType           string  `json:"task_type"`
	RewardCoins        float64 `json:"reward_coins"`
	ActionURL          string  `json:"action_url"`
	VerificationMethod string  `json:"verification_method"`
	IsActive           bool    `json:"is_active"`
	SortOrder          int     `json:"sort_order"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// TaskCompletion is the per-(user, task) join record. At most one exists for
// a pair, which is what makes task rewards single-grant.
type TaskCompletion struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Proof       string `json:"proof"`
	CompletedAt string `json:"completed_at"`
	VerifiedAt  string `json:"verified_at"`
	UpdatedAt   string `json:"updated_at"`
}
