package syncmgr

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/ekehi/ekehi-sync-server/model"
	"github.com/ekehi/ekehi-sync-server/repos"
)

// SyncState describes where a reconciliation pass currently stands.
type SyncState int

const (
	// StateIdle means no pass is running and none has run yet.
	StateIdle SyncState = iota
	// StateSyncing means a pass is in flight.
	StateSyncing
	// StateSucceeded means the last pass reconciled every stage.
	StateSucceeded
	// StateFailed means the last pass aborted at some stage.
	StateFailed
)

var syncStateStrings = map[SyncState]string{
	StateIdle:      "idle",
	StateSyncing:   "syncing",
	StateSucceeded: "succeeded",
	StateFailed:    "failed",
}

func (s SyncState) String() string {
	if str, ok := syncStateStrings[s]; ok {
		return str
	}
	return "Unknown SyncState"
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	UserID             string    `json:"userId"`
	State              SyncState `json:"-"`
	Message            string    `json:"message,omitempty"`
	ProfileSynced      bool      `json:"profileSynced"`
	SessionsReconciled int       `json:"sessionsReconciled"`
	TasksReconciled    int       `json:"tasksReconciled"`
	CompletionsPushed  int       `json:"completionsPushed"`
	StartedAt          string    `json:"startedAt"`
	FinishedAt         string    `json:"finishedAt"`
}

// SyncManager reconciles the local store with the backend. Conflicts are
// resolved last-writer-wins on the updatedAt stamp; a tie goes to the
// remote copy since the backend is the canonical ledger. A pass runs its
// stages in order and stops at the first stage that cannot reach the
// backend, leaving earlier stages' writes in place.
type SyncManager struct {
	userRepo   *repos.OfflineUserRepo
	miningRepo *repos.OfflineMiningRepo
	taskRepo   *repos.OfflineSocialTaskRepo

	profileSrc repos.UserProfileSource
	sessionSrc repos.MiningSessionSource
	taskSrc    repos.SocialTaskSource

	mtx       sync.RWMutex
	state     SyncState
	lastRun   *SyncResult
	running   bool
	callbacks []NotificationCallback
}

// NewSyncManager creates a sync manager over the given offline
// repositories and their backing sources.
func NewSyncManager(userRepo *repos.OfflineUserRepo, miningRepo *repos.OfflineMiningRepo,
	taskRepo *repos.OfflineSocialTaskRepo, profileSrc repos.UserProfileSource,
	sessionSrc repos.MiningSessionSource, taskSrc repos.SocialTaskSource) *SyncManager {

	return &SyncManager{
		userRepo:   userRepo,
		miningRepo: miningRepo,
		taskRepo:   taskRepo,
		profileSrc: profileSrc,
		sessionSrc: sessionSrc,
		taskSrc:    taskSrc,
		state:      StateIdle,
	}
}

// Subscribe registers a callback that fires for every notification the
// manager emits. Callbacks run synchronously on the syncing goroutine and
// must not block.
func (m *SyncManager) Subscribe(callback NotificationCallback) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *SyncManager) sendNotification(typ NotificationType, userID string, data interface{}) {
	n := &Notification{Type: typ, UserID: userID, Data: data}
	m.mtx.RLock()
	callbacks := m.callbacks
	m.mtx.RUnlock()
	for _, callback := range callbacks {
		callback(n)
	}
}

// State reports the state of the current or most recent pass.
func (m *SyncManager) State() SyncState {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.state
}

// LastResult returns the result of the most recent finished pass, or nil
// when none has finished yet.
func (m *SyncManager) LastResult() *SyncResult {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.lastRun
}

// ResolveProfile picks the winning copy of a profile. The fresher
// updatedAt wins; an equal stamp keeps the remote copy.
func ResolveProfile(local, remote *model.UserProfile) *model.UserProfile {
	if remote == nil {
		return local
	}
	if local == nil {
		return remote
	}
	if local.UpdatedAt > remote.UpdatedAt {
		return local
	}
	return remote
}

// ResolveSession picks the winning copy of a mining session. The fresher
// updatedAt wins; an equal stamp keeps the remote copy. A session marked
// completed never loses to an in-progress copy of itself regardless of
// stamps, since completion is terminal.
func ResolveSession(local, remote *model.MiningSession) *model.MiningSession {
	if remote == nil {
		return local
	}
	if local == nil {
		return remote
	}
	if local.Completed != remote.Completed {
		if local.Completed {
			return local
		}
		return remote
	}
	if local.UpdatedAt > remote.UpdatedAt {
		return local
	}
	return remote
}

// ResolveCompletion picks the winning copy of a task completion. A
// remote verdict (verified or rejected) always beats a pending local
// record; otherwise the fresher updatedAt wins with ties to remote.
func ResolveCompletion(local, remote *model.TaskCompletion) *model.TaskCompletion {
	if remote == nil {
		return local
	}
	if local == nil {
		return remote
	}
	if local.Status == model.CompletionPending && remote.Status != model.CompletionPending {
		return remote
	}
	if remote.Status == model.CompletionPending && local.Status != model.CompletionPending {
		return local
	}
	if local.UpdatedAt > remote.UpdatedAt {
		return local
	}
	return remote
}

// SyncAll runs one full reconciliation pass for userID: profile first,
// then mining sessions, then the task catalog and completions. The first
// stage that cannot reach the backend aborts the pass; writes applied by
// earlier stages stay applied.
func (m *SyncManager) SyncAll(ctx context.Context, userID string) (*SyncResult, error) {
	m.mtx.Lock()
	if m.running {
		m.mtx.Unlock()
		return nil, errors.New("sync already in progress")
	}
	m.running = true
	m.state = StateSyncing
	m.mtx.Unlock()

	result := &SyncResult{
		UserID:    userID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m.sendNotification(NTSyncStarted, userID, nil)
	log.Infof("Starting sync pass for user %s", userID)

	err := m.runStages(ctx, userID, result)

	result.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	m.mtx.Lock()
	m.running = false
	if err != nil {
		m.state = StateFailed
		result.State = StateFailed
		result.Message = err.Error()
	} else {
		m.state = StateSucceeded
		result.State = StateSucceeded
	}
	m.lastRun = result
	m.mtx.Unlock()

	if err != nil {
		log.Errorf("Sync pass for user %s failed: %v", userID, err)
	} else {
		log.Infof("Sync pass for user %s finished: profile=%v sessions=%d tasks=%d completions=%d",
			userID, result.ProfileSynced, result.SessionsReconciled,
			result.TasksReconciled, result.CompletionsPushed)
	}
	m.sendNotification(NTSyncFinished, userID, result)
	return result, err
}

func (m *SyncManager) runStages(ctx context.Context, userID string, result *SyncResult) error {
	if err := m.syncProfile(ctx, userID, result); err != nil {
		return err
	}
	m.sendNotification(NTStageReconciled, userID, "profile")

	if err := m.syncSessions(ctx, userID, result); err != nil {
		return err
	}
	m.sendNotification(NTStageReconciled, userID, "sessions")

	if err := m.syncTasks(ctx, userID, result); err != nil {
		return err
	}
	m.sendNotification(NTStageReconciled, userID, "tasks")
	return nil
}

func (m *SyncManager) syncProfile(ctx context.Context, userID string, result *SyncResult) error {
	remote, err := m.profileSrc.GetProfile(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "Failed to fetch user profile from server")
	}
	local, err := m.userRepo.LocalProfile(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "Error reading local user profile")
	}
	winner := ResolveProfile(local, remote)
	if winner == nil {
		return nil
	}
	if winner == local && remote != nil {
		// The local copy is fresher. Push it up instead of clobbering
		// it; a push failure is retried on the next pass.
		if _, err := m.profileSrc.UpdateProfile(ctx, userID, profileFields(local)); err != nil {
			log.Warnf("Failed to push local profile for user %s: %v", userID, err)
		}
		result.ProfileSynced = true
		return nil
	}
	if err := m.userRepo.CacheProfile(ctx, winner); err != nil {
		return errors.Wrapf(err, "Error caching user profile")
	}
	result.ProfileSynced = true
	return nil
}

// profileFields flattens a profile into the partial-update form the
// backend accepts.
func profileFields(p *model.UserProfile) map[string]interface{} {
	return map[string]interface{}{
		"username":           p.Username,
		"email":              p.Email,
		"task_reward":        p.TaskReward,
		"mining_reward":      p.MiningReward,
		"referral_reward":    p.ReferralReward,
		"mining_power":       p.MiningPower,
		"current_streak":     p.CurrentStreak,
		"longest_streak":     p.LongestStreak,
		"last_login_date":    p.LastLoginDate,
		"total_referrals":    p.TotalReferrals,
		"max_daily_earnings": p.MaxDailyEarnings,
		"today_earnings":     p.TodayEarnings,
		"updated_at":         p.UpdatedAt,
	}
}

func (m *SyncManager) syncSessions(ctx context.Context, userID string, result *SyncResult) error {
	remoteSessions, err := m.sessionSrc.GetSessions(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "Error syncing mining sessions")
	}
	localSessions, err := m.miningRepo.LocalSessions(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "Error reading local mining sessions")
	}

	localByID := make(map[string]*model.MiningSession, len(localSessions))
	for _, s := range localSessions {
		localByID[s.ID] = s
	}

	for _, remote := range remoteSessions {
		local := localByID[remote.ID]
		delete(localByID, remote.ID)
		winner := ResolveSession(local, remote)
		if winner == local && local != nil {
			// The device copy is fresher. Push it up and leave the
			// local row untouched.
			if _, err := m.sessionSrc.UpdateSession(ctx, local); err != nil {
				log.Warnf("Failed to push session %s: %v", local.ID, err)
			}
			result.SessionsReconciled++
			continue
		}
		if err := m.miningRepo.CacheSession(ctx, winner); err != nil {
			return errors.Wrapf(err, "Error caching mining session")
		}
		result.SessionsReconciled++
	}

	// Sessions the backend has never seen were started offline. Report
	// them so they survive a reinstall.
	for _, local := range localByID {
		if _, err := m.sessionSrc.CreateSession(ctx, local); err != nil {
			log.Warnf("Failed to report offline session %s: %v", local.ID, err)
			continue
		}
		result.SessionsReconciled++
	}
	return nil
}

func (m *SyncManager) syncTasks(ctx context.Context, userID string, result *SyncResult) error {
	tasks, err := m.taskRepo.SyncTasks(ctx)
	if err != nil {
		return errors.Wrapf(err, "Error syncing social tasks")
	}
	result.TasksReconciled = len(tasks)

	remoteCompletions, err := m.taskSrc.GetUserTasks(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "Error syncing task completions")
	}
	localCompletions, err := m.taskRepo.LocalCompletions(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "Error reading local task completions")
	}

	remoteByTask := make(map[string]*model.TaskCompletion, len(remoteCompletions))
	for _, c := range remoteCompletions {
		remoteByTask[c.TaskID] = c
	}

	for _, local := range localCompletions {
		remote := remoteByTask[local.TaskID]
		delete(remoteByTask, local.TaskID)
		winner := ResolveCompletion(local, remote)
		if winner == local {
			if remote == nil && local.Status == model.CompletionPending {
				// Completed offline and never reported. Push it up; a
				// failure leaves it pending for the next pass.
				if _, err := m.taskSrc.CompleteTask(ctx, userID, local.TaskID, local.Proof); err != nil {
					log.Warnf("Failed to report completion of task %s for user %s: %v",
						local.TaskID, userID, err)
					continue
				}
				result.CompletionsPushed++
			}
			continue
		}
		if err := m.taskRepo.CacheCompletion(ctx, winner); err != nil {
			return errors.Wrapf(err, "Error caching task completion")
		}
	}

	// Completions only the backend knows about, e.g. from another device.
	for _, remote := range remoteByTask {
		if err := m.taskRepo.CacheCompletion(ctx, remote); err != nil {
			return errors.Wrapf(err, "Error caching task completion")
		}
	}
	return nil
}
