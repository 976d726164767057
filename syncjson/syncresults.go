package syncjson

import (
	"github.com/ekehi/ekehi-sync-server/model"
)

// VersionResult models objects included in the version response.
type VersionResult struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

// AuthenticateResult models objects included in the authenticate response.
type AuthenticateResult struct {
	Authenticated bool `json:"authenticated"`
}

// GetStatusResult models objects included in the sync.status response.
type GetStatusResult struct {
	State        string          `json:"state"`
	TrackedUsers []string        `json:"tracked_users"`
	LastResult   *SyncPassResult `json:"last_result,omitempty"`
}

// SyncPassResult models the summary of one reconciliation pass as carried
// by sync.run and sync.status responses.
type SyncPassResult struct {
	UserID             string `json:"user_id"`
	State              string `json:"state"`
	Message            string `json:"message,omitempty"`
	ProfileSynced      bool   `json:"profile_synced"`
	SessionsReconciled int    `json:"sessions_reconciled"`
	TasksReconciled    int    `json:"tasks_reconciled"`
	CompletionsPushed  int    `json:"completions_pushed"`
	StartedAt          string `json:"started_at"`
	FinishedAt         string `json:"finished_at"`
}

// TrackResult models objects included in the sync.track and sync.untrack
// responses.
type TrackResult struct {
	UserID  string `json:"user_id"`
	Tracked bool   `json:"tracked"`
}

// GetStrategyResult models objects included in the cache.get_strategy and
// cache.set_strategy responses.
type GetStrategyResult struct {
	Strategy string `json:"strategy"`
}

// GetProfileResult models objects included in the profile.get and
// profile.update responses. Profile is null when the user has no cached
// profile yet.
type GetProfileResult struct {
	Profile *model.UserProfile `json:"profile"`
}

// GetSessionsResult models objects included in the sessions.get response.
type GetSessionsResult struct {
	Sessions []*model.MiningSession `json:"sessions"`
}

// StartSessionResult models objects included in the session.start and
// session.progress responses.
type StartSessionResult struct {
	Session *model.MiningSession `json:"session"`
}

// GetTasksResult models objects included in the tasks.get response.
type GetTasksResult struct {
	Tasks []*model.SocialTask `json:"tasks"`
}

// GetCompletionsResult models objects included in the completions.get
// response.
type GetCompletionsResult struct {
	Completions []*model.TaskCompletion `json:"completions"`
}

// CompleteTaskResult models objects included in the task.complete response.
type CompleteTaskResult struct {
	Completion *model.TaskCompletion `json:"completion"`
}

// WatchResult models objects included in the watch and unwatch responses.
type WatchResult struct {
	Entity   string `json:"entity"`
	UserID   string `json:"user_id,omitempty"`
	Watching bool   `json:"watching"`
}
