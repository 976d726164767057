package syncjson

// VersionCmd defines the version JSON-RPC command.
type VersionCmd struct{}

// NewVersionCmd returns a new instance which can be used to issue a JSON-RPC
// version command.
func NewVersionCmd() *VersionCmd { return new(VersionCmd) }

// AuthenticateCmd defines the authenticate JSON-RPC command.
// used in RPC authentication
type AuthenticateCmd struct {
	Username   string `json:"username"`
	Passphrase string `json:"passphrase"`
}

// NewAuthenticateCmd returns a new instance which can be used to issue an
// authenticate JSON-RPC command.
func NewAuthenticateCmd(username, passphrase string) *AuthenticateCmd {
	return &AuthenticateCmd{
		Username:   username,
		Passphrase: passphrase,
	}
}

// GetStatusCmd defines the sync.status JSON-RPC command.
type GetStatusCmd struct{}

func NewGetStatusCmd() *GetStatusCmd {
	return &GetStatusCmd{}
}

// SyncCmd defines the sync.run JSON-RPC command.
type SyncCmd struct {
	UserID string `json:"user_id"`
}

// NewSyncCmd returns a new instance which can be used to issue a sync.run
// JSON-RPC command.
func NewSyncCmd(userID string) *SyncCmd {
	return &SyncCmd{
		UserID: userID,
	}
}

// TrackCmd defines the sync.track JSON-RPC command. A tracked user is
// reconciled on every scheduler tick.
type TrackCmd struct {
	UserID string `json:"user_id"`
}

func NewTrackCmd(userID string) *TrackCmd {
	return &TrackCmd{
		UserID: userID,
	}
}

// UntrackCmd defines the sync.untrack JSON-RPC command.
type UntrackCmd struct {
	UserID string `json:"user_id"`
}

func NewUntrackCmd(userID string) *UntrackCmd {
	return &UntrackCmd{
		UserID: userID,
	}
}

// GetStrategyCmd defines the cache.get_strategy JSON-RPC command.
type GetStrategyCmd struct{}

func NewGetStrategyCmd() *GetStrategyCmd {
	return &GetStrategyCmd{}
}

// SetStrategyCmd defines the cache.set_strategy JSON-RPC command.
type SetStrategyCmd struct {
	Strategy string `json:"strategy"`
}

func NewSetStrategyCmd(strategy string) *SetStrategyCmd {
	return &SetStrategyCmd{
		Strategy: strategy,
	}
}

// GetProfileCmd defines the profile.get JSON-RPC command.
type GetProfileCmd struct {
	UserID string `json:"user_id"`
}

func NewGetProfileCmd(userID string) *GetProfileCmd {
	return &GetProfileCmd{
		UserID: userID,
	}
}

// UpdateProfileCmd defines the profile.update JSON-RPC command. Fields
// holds the partial update to apply.
type UpdateProfileCmd struct {
	UserID string                 `json:"user_id"`
	Fields map[string]interface{} `json:"fields"`
}

func NewUpdateProfileCmd(userID string, fields map[string]interface{}) *UpdateProfileCmd {
	return &UpdateProfileCmd{
		UserID: userID,
		Fields: fields,
	}
}

// GetSessionsCmd defines the sessions.get JSON-RPC command.
type GetSessionsCmd struct {
	UserID string `json:"user_id"`
}

func NewGetSessionsCmd(userID string) *GetSessionsCmd {
	return &GetSessionsCmd{
		UserID: userID,
	}
}

// StartSessionCmd defines the session.start JSON-RPC command.
type StartSessionCmd struct {
	UserID string `json:"user_id"`
}

func NewStartSessionCmd(userID string) *StartSessionCmd {
	return &StartSessionCmd{
		UserID: userID,
	}
}

// RecordProgressCmd defines the session.progress JSON-RPC command.
type RecordProgressCmd struct {
	SessionID       string  `json:"session_id"`
	CoinsEarned     float64 `json:"coins_earned"`
	ClicksMade      int     `json:"clicks_made"`
	SessionDuration int     `json:"session_duration"`
}

func NewRecordProgressCmd(sessionID string, coinsEarned float64, clicksMade int, sessionDuration int) *RecordProgressCmd {
	return &RecordProgressCmd{
		SessionID:       sessionID,
		CoinsEarned:     coinsEarned,
		ClicksMade:      clicksMade,
		SessionDuration: sessionDuration,
	}
}

// GetTasksCmd defines the tasks.get JSON-RPC command.
type GetTasksCmd struct{}

func NewGetTasksCmd() *GetTasksCmd {
	return &GetTasksCmd{}
}

// GetCompletionsCmd defines the completions.get JSON-RPC command.
type GetCompletionsCmd struct {
	UserID string `json:"user_id"`
}

func NewGetCompletionsCmd(userID string) *GetCompletionsCmd {
	return &GetCompletionsCmd{
		UserID: userID,
	}
}

// CompleteTaskCmd defines the task.complete JSON-RPC command.
type CompleteTaskCmd struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
	Proof  string `json:"proof,omitempty"`
}

func NewCompleteTaskCmd(userID string, taskID string, proof string) *CompleteTaskCmd {
	return &CompleteTaskCmd{
		UserID: userID,
		TaskID: taskID,
		Proof:  proof,
	}
}

// WatchCmd defines the watch JSON-RPC command. Entity is one of "profile",
// "sessions", "tasks" or "completions"; UserID is ignored for "tasks"
// since the catalog is global.
type WatchCmd struct {
	Entity string `json:"entity"`
	UserID string `json:"user_id,omitempty"`
}

func NewWatchCmd(entity string, userID string) *WatchCmd {
	return &WatchCmd{
		Entity: entity,
		UserID: userID,
	}
}

// UnwatchCmd defines the unwatch JSON-RPC command.
type UnwatchCmd struct {
	Entity string `json:"entity"`
	UserID string `json:"user_id,omitempty"`
}

func NewUnwatchCmd(entity string, userID string) *UnwatchCmd {
	return &UnwatchCmd{
		Entity: entity,
		UserID: userID,
	}
}

func init() {
	MustRegisterCmd("version", (*VersionCmd)(nil))
	MustRegisterCmd("authenticate", (*AuthenticateCmd)(nil))
	MustRegisterCmd("sync.status", (*GetStatusCmd)(nil))
	MustRegisterCmd("sync.run", (*SyncCmd)(nil))
	MustRegisterCmd("sync.track", (*TrackCmd)(nil))
	MustRegisterCmd("sync.untrack", (*UntrackCmd)(nil))
	MustRegisterCmd("cache.get_strategy", (*GetStrategyCmd)(nil))
	MustRegisterCmd("cache.set_strategy", (*SetStrategyCmd)(nil))
	MustRegisterCmd("profile.get", (*GetProfileCmd)(nil))
	MustRegisterCmd("profile.update", (*UpdateProfileCmd)(nil))
	MustRegisterCmd("sessions.get", (*GetSessionsCmd)(nil))
	MustRegisterCmd("session.start", (*StartSessionCmd)(nil))
	MustRegisterCmd("session.progress", (*RecordProgressCmd)(nil))
	MustRegisterCmd("tasks.get", (*GetTasksCmd)(nil))
	MustRegisterCmd("completions.get", (*GetCompletionsCmd)(nil))
	MustRegisterCmd("task.complete", (*CompleteTaskCmd)(nil))
	MustRegisterCmd("watch", (*WatchCmd)(nil))
	MustRegisterCmd("unwatch", (*UnwatchCmd)(nil))
}
