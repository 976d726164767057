package syncmgr

import (
	"context"
	"errors"
	"testing"

	"github.com/ekehi/ekehi-sync-server/cachemgr"
	"github.com/ekehi/ekehi-sync-server/dal"
	"github.com/ekehi/ekehi-sync-server/dal/dao"
	"github.com/ekehi/ekehi-sync-server/dal/do"
	"github.com/ekehi/ekehi-sync-server/model"
	"github.com/ekehi/ekehi-sync-server/repos"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestResolveProfile(t *testing.T) {
	older := &model.UserProfile{UserID: "u-1", UpdatedAt: "2026-01-01T00:00:00Z"}
	newer := &model.UserProfile{UserID: "u-1", UpdatedAt: "2026-02-01T00:00:00Z"}

	t.Run("fresher_local_wins", func(t *testing.T) {
		if got := ResolveProfile(newer, older); got != newer {
			t.Error("fresher local copy should win")
		}
	})

	t.Run("fresher_remote_wins", func(t *testing.T) {
		if got := ResolveProfile(older, newer); got != newer {
			t.Error("fresher remote copy should win")
		}
	})

	t.Run("tie_goes_to_remote", func(t *testing.T) {
		local := &model.UserProfile{UserID: "u-1", UpdatedAt: "2026-01-01T00:00:00Z"}
		remote := &model.UserProfile{UserID: "u-1", UpdatedAt: "2026-01-01T00:00:00Z"}
		if got := ResolveProfile(local, remote); got != remote {
			t.Error("equal stamps should keep the remote copy")
		}
	})

	t.Run("nil_sides", func(t *testing.T) {
		if got := ResolveProfile(older, nil); got != older {
			t.Error("nil remote should keep local")
		}
		if got := ResolveProfile(nil, older); got != older {
			t.Error("nil local should keep remote")
		}
	})
}

func TestResolveSession(t *testing.T) {
	t.Run("completion_is_terminal", func(t *testing.T) {
		local := &model.MiningSession{ID: "s-1", Completed: true, UpdatedAt: "2026-01-01T00:00:00Z"}
		remote := &model.MiningSession{ID: "s-1", Completed: false, UpdatedAt: "2026-02-01T00:00:00Z"}
		if got := ResolveSession(local, remote); got != local {
			t.Error("completed copy should beat a fresher in-progress copy")
		}
	})

	t.Run("lww_when_both_running", func(t *testing.T) {
		local := &model.MiningSession{ID: "s-1", UpdatedAt: "2026-02-01T00:00:00Z"}
		remote := &model.MiningSession{ID: "s-1", UpdatedAt: "2026-01-01T00:00:00Z"}
		if got := ResolveSession(local, remote); got != local {
			t.Error("fresher copy should win")
		}
	})
}

func TestResolveCompletion(t *testing.T) {
	t.Run("verdict_beats_pending", func(t *testing.T) {
		local := &model.TaskCompletion{TaskID: "t-1", Status: model.CompletionPending,
			UpdatedAt: "2026-02-01T00:00:00Z"}
		remote := &model.TaskCompletion{TaskID: "t-1", Status: model.CompletionVerified,
			UpdatedAt: "2026-01-01T00:00:00Z"}
		if got := ResolveCompletion(local, remote); got != remote {
			t.Error("a settled verdict should beat a fresher pending record")
		}
	})

	t.Run("local_verdict_kept", func(t *testing.T) {
		local := &model.TaskCompletion{TaskID: "t-1", Status: model.CompletionRejected,
			UpdatedAt: "2026-01-01T00:00:00Z"}
		remote := &model.TaskCompletion{TaskID: "t-1", Status: model.CompletionPending,
			UpdatedAt: "2026-02-01T00:00:00Z"}
		if got := ResolveCompletion(local, remote); got != local {
			t.Error("a settled local verdict should not regress to pending")
		}
	})
}

// syncFakeSource serves canned backend responses for full-pass tests.
type syncFakeSource struct {
	profile    *model.UserProfile
	profileErr error

	sessions    []*model.MiningSession
	sessionsErr error
	pushed      []*model.MiningSession
	created     []*model.MiningSession

	tasks          []*model.SocialTask
	tasksErr       error
	completions    []*model.TaskCompletion
	completionsErr error
	reported       []string

	updatedProfile bool
}

func (f *syncFakeSource) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return f.profile, f.profileErr
}

func (f *syncFakeSource) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) (*model.UserProfile, error) {
	f.updatedProfile = true
	return f.profile, nil
}

func (f *syncFakeSource) CreateSession(ctx context.Context, session *model.MiningSession) (*model.MiningSession, error) {
	f.created = append(f.created, session)
	return session, nil
}

func (f *syncFakeSource) UpdateSession(ctx context.Context, session *model.MiningSession) (*model.MiningSession, error) {
	f.pushed = append(f.pushed, session)
	return session, nil
}

func (f *syncFakeSource) GetSession(ctx context.Context, id string) (*model.MiningSession, error) {
	return nil, nil
}

func (f *syncFakeSource) GetSessions(ctx context.Context, userID string) ([]*model.MiningSession, error) {
	return f.sessions, f.sessionsErr
}

func (f *syncFakeSource) GetTasks(ctx context.Context) ([]*model.SocialTask, error) {
	return f.tasks, f.tasksErr
}

func (f *syncFakeSource) GetUserTasks(ctx context.Context, userID string) ([]*model.TaskCompletion, error) {
	return f.completions, f.completionsErr
}

func (f *syncFakeSource) CompleteTask(ctx context.Context, userID string, taskID string, proof string) (*model.TaskCompletion, error) {
	f.reported = append(f.reported, taskID)
	return &model.TaskCompletion{UserID: userID, TaskID: taskID, Status: model.CompletionPending}, nil
}

type syncFixture struct {
	mgr        *SyncManager
	userRepo   *repos.OfflineUserRepo
	miningRepo *repos.OfflineMiningRepo
	taskRepo   *repos.OfflineSocialTaskRepo
	src        *syncFakeSource
}

func newSyncFixture(t *testing.T, src *syncFakeSource) *syncFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(&do.UserProfileInfo{}, &do.MiningSessionInfo{},
		&do.SocialTaskInfo{}, &do.TaskCompletionInfo{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	watcher := dal.NewWatcher()
	cache := cachemgr.NewManager(cachemgr.CacheFirst)
	userRepo := repos.NewOfflineUserRepo(db, dao.GetUserProfileDAOImpl(), watcher, src, cache)
	miningRepo := repos.NewOfflineMiningRepo(db, dao.GetMiningSessionDAOImpl(), watcher, src, cache)
	taskRepo, err := repos.NewOfflineSocialTaskRepo(db, dao.GetSocialTaskDAOImpl(),
		dao.GetTaskCompletionDAOImpl(), watcher, src, cache)
	if err != nil {
		t.Fatal(err.Error())
	}

	mgr := NewSyncManager(userRepo, miningRepo, taskRepo, src, src, src)
	return &syncFixture{
		mgr:        mgr,
		userRepo:   userRepo,
		miningRepo: miningRepo,
		taskRepo:   taskRepo,
		src:        src,
	}
}

func TestSyncManager_SyncAll(t *testing.T) {
	ctx := context.Background()

	t.Run("full_pass", func(t *testing.T) {
		src := &syncFakeSource{
			profile: &model.UserProfile{ID: "p-1", UserID: "u-1",
				TaskReward: 7, UpdatedAt: "2026-01-01T00:00:00Z"},
			sessions: []*model.MiningSession{
				{ID: "s-1", UserID: "u-1", Completed: true, UpdatedAt: "2026-01-01T00:00:00Z"},
			},
			tasks: []*model.SocialTask{
				{ID: "t-1", Title: "Join Telegram"},
			},
			completions: []*model.TaskCompletion{
				{ID: "c-1", UserID: "u-1", TaskID: "t-1", Status: model.CompletionVerified},
			},
		}
		f := newSyncFixture(t, src)

		result, err := f.mgr.SyncAll(ctx, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if result.State != StateSucceeded {
			t.Errorf("State = %v, want succeeded", result.State)
		}
		if !result.ProfileSynced {
			t.Error("profile was not synced")
		}
		if result.SessionsReconciled != 1 {
			t.Errorf("SessionsReconciled = %v, want 1", result.SessionsReconciled)
		}
		if result.TasksReconciled != 1 {
			t.Errorf("TasksReconciled = %v, want 1", result.TasksReconciled)
		}

		// Remote state landed in the local store.
		profile, err := f.userRepo.LocalProfile(ctx, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if profile == nil || profile.TaskReward != 7 {
			t.Errorf("profile = %+v", profile)
		}
		completions, err := f.taskRepo.LocalCompletions(ctx, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if len(completions) != 1 || completions[0].Status != model.CompletionVerified {
			t.Errorf("completions = %+v", completions)
		}

		if f.mgr.State() != StateSucceeded {
			t.Errorf("manager state = %v", f.mgr.State())
		}
		if f.mgr.LastResult() == nil {
			t.Error("LastResult is nil after a pass")
		}
	})

	t.Run("fresher_local_profile_pushed_not_clobbered", func(t *testing.T) {
		src := &syncFakeSource{
			profile: &model.UserProfile{ID: "p-1", UserID: "u-1",
				TaskReward: 1, UpdatedAt: "2026-01-01T00:00:00Z"},
		}
		f := newSyncFixture(t, src)

		err := f.userRepo.CacheProfile(ctx, &model.UserProfile{
			ID: "p-1", UserID: "u-1", TaskReward: 9,
			UpdatedAt: "2026-02-01T00:00:00Z",
		})
		if err != nil {
			t.Fatal(err.Error())
		}

		if _, err := f.mgr.SyncAll(ctx, "u-1"); err != nil {
			t.Fatal(err.Error())
		}

		if !src.updatedProfile {
			t.Error("fresher local profile was not pushed to the backend")
		}
		profile, err := f.userRepo.LocalProfile(ctx, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if profile.TaskReward != 9 {
			t.Errorf("local profile was clobbered: TaskReward = %v", profile.TaskReward)
		}
	})

	t.Run("offline_session_reported", func(t *testing.T) {
		src := &syncFakeSource{}
		f := newSyncFixture(t, src)

		session, err := f.miningRepo.StartSession(ctx, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}

		if _, err := f.mgr.SyncAll(ctx, "u-1"); err != nil {
			t.Fatal(err.Error())
		}

		if len(src.created) != 1 || src.created[0].ID != session.ID {
			t.Errorf("offline session was not reported: %+v", src.created)
		}
	})

	t.Run("pending_completion_pushed", func(t *testing.T) {
		src := &syncFakeSource{
			tasks: []*model.SocialTask{{ID: "t-1", Title: "Follow"}},
		}
		f := newSyncFixture(t, src)

		err := f.taskRepo.CacheCompletion(ctx, &model.TaskCompletion{
			ID: "c-1", UserID: "u-1", TaskID: "t-1",
			Status: model.CompletionPending, UpdatedAt: "2026-01-01T00:00:00Z",
		})
		if err != nil {
			t.Fatal(err.Error())
		}

		result, err := f.mgr.SyncAll(ctx, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if len(src.reported) != 1 || src.reported[0] != "t-1" {
			t.Errorf("pending completion was not reported: %v", src.reported)
		}
		if result.CompletionsPushed != 1 {
			t.Errorf("CompletionsPushed = %v, want 1", result.CompletionsPushed)
		}
	})

	t.Run("stage_failure_keeps_earlier_writes", func(t *testing.T) {
		src := &syncFakeSource{
			profile: &model.UserProfile{ID: "p-1", UserID: "u-1",
				TaskReward: 3, UpdatedAt: "2026-01-01T00:00:00Z"},
			sessionsErr: errors.New("offline"),
		}
		f := newSyncFixture(t, src)

		result, err := f.mgr.SyncAll(ctx, "u-1")
		if err == nil {
			t.Fatal("expected the pass to fail")
		}
		if result.State != StateFailed {
			t.Errorf("State = %v, want failed", result.State)
		}

		// The profile stage ran before the failure and its write stays.
		profile, perr := f.userRepo.LocalProfile(ctx, "u-1")
		if perr != nil {
			t.Fatal(perr.Error())
		}
		if profile == nil || profile.TaskReward != 3 {
			t.Errorf("profile write was rolled back: %+v", profile)
		}
	})

	t.Run("notifications_fired", func(t *testing.T) {
		src := &syncFakeSource{}
		f := newSyncFixture(t, src)

		var types []NotificationType
		f.mgr.Subscribe(func(n *Notification) {
			types = append(types, n.Type)
		})

		if _, err := f.mgr.SyncAll(ctx, "u-1"); err != nil {
			t.Fatal(err.Error())
		}

		if len(types) < 2 {
			t.Fatalf("notifications = %v", types)
		}
		if types[0] != NTSyncStarted {
			t.Errorf("first notification = %v, want NTSyncStarted", types[0])
		}
		if types[len(types)-1] != NTSyncFinished {
			t.Errorf("last notification = %v, want NTSyncFinished", types[len(types)-1])
		}
	})
}
