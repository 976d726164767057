package syncjson

import (
	"github.com/ekehi/ekehi-sync-server/model"
)

const (
	SyncStatusNtfnMethod         = "sync.statusntfn"
	ProfileUpdatedNtfnMethod     = "profile.updated"
	SessionsUpdatedNtfnMethod    = "sessions.updated"
	TasksUpdatedNtfnMethod       = "tasks.updated"
	CompletionsUpdatedNtfnMethod = "completions.updated"
)

// SyncStatusNtfn is pushed when a reconciliation pass starts or finishes.
type SyncStatusNtfn struct {
	UserID string          `json:"user_id"`
	State  string          `json:"state"`
	Result *SyncPassResult `json:"result,omitempty"`
}

func NewSyncStatusNtfn(userID string, state string, result *SyncPassResult) *SyncStatusNtfn {
	return &SyncStatusNtfn{
		UserID: userID,
		State:  state,
		Result: result,
	}
}

// ProfileUpdatedNtfn is pushed to profile watchers whenever the cached
// profile changes. Profile is null when the record was deleted.
type ProfileUpdatedNtfn struct {
	UserID  string             `json:"user_id"`
	Profile *model.UserProfile `json:"profile"`
}

func NewProfileUpdatedNtfn(userID string, profile *model.UserProfile) *ProfileUpdatedNtfn {
	return &ProfileUpdatedNtfn{
		UserID:  userID,
		Profile: profile,
	}
}

// SessionsUpdatedNtfn is pushed to session watchers with the full session
// history after every change.
type SessionsUpdatedNtfn struct {
	UserID   string                 `json:"user_id"`
	Sessions []*model.MiningSession `json:"sessions"`
}

func NewSessionsUpdatedNtfn(userID string, sessions []*model.MiningSession) *SessionsUpdatedNtfn {
	return &SessionsUpdatedNtfn{
		UserID:   userID,
		Sessions: sessions,
	}
}

// TasksUpdatedNtfn is pushed to catalog watchers after the task catalog
// changes.
type TasksUpdatedNtfn struct {
	Tasks []*model.SocialTask `json:"tasks"`
}

func NewTasksUpdatedNtfn(tasks []*model.SocialTask) *TasksUpdatedNtfn {
	return &TasksUpdatedNtfn{
		Tasks: tasks,
	}
}

// CompletionsUpdatedNtfn is pushed to completion watchers after a user's
// completion records change.
type CompletionsUpdatedNtfn struct {
	UserID      string                  `json:"user_id"`
	Completions []*model.TaskCompletion `json:"completions"`
}

func NewCompletionsUpdatedNtfn(userID string, completions []*model.TaskCompletion) *CompletionsUpdatedNtfn {
	return &CompletionsUpdatedNtfn{
		UserID:      userID,
		Completions: completions,
	}
}
