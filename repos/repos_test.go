package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ekehi/ekehi-sync-server/cachemgr"
	"github.com/ekehi/ekehi-sync-server/dal"
	"github.com/ekehi/ekehi-sync-server/dal/dao"
	"github.com/ekehi/ekehi-sync-server/dal/do"
	"github.com/ekehi/ekehi-sync-server/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeSource implements every remote source interface with canned responses.
type fakeSource struct {
	profile    *model.UserProfile
	profileErr error

	sessions    []*model.MiningSession
	sessionsErr error

	tasks       []*model.SocialTask
	tasksErr    error
	completions []*model.TaskCompletion

	completeResult *model.TaskCompletion
	completeErr    error
	completeCalls  int

	updateCalls int
}

func (f *fakeSource) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return f.profile, f.profileErr
}

func (f *fakeSource) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) (*model.UserProfile, error) {
	f.updateCalls++
	return f.profile, f.profileErr
}

func (f *fakeSource) CreateSession(ctx context.Context, session *model.MiningSession) (*model.MiningSession, error) {
	return session, f.sessionsErr
}

func (f *fakeSource) UpdateSession(ctx context.Context, session *model.MiningSession) (*model.MiningSession, error) {
	return session, f.sessionsErr
}

func (f *fakeSource) GetSession(ctx context.Context, id string) (*model.MiningSession, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return s, f.sessionsErr
		}
	}
	return nil, f.sessionsErr
}

func (f *fakeSource) GetSessions(ctx context.Context, userID string) ([]*model.MiningSession, error) {
	return f.sessions, f.sessionsErr
}

func (f *fakeSource) GetTasks(ctx context.Context) ([]*model.SocialTask, error) {
	return f.tasks, f.tasksErr
}

func (f *fakeSource) GetUserTasks(ctx context.Context, userID string) ([]*model.TaskCompletion, error) {
	return f.completions, f.tasksErr
}

func (f *fakeSource) CompleteTask(ctx context.Context, userID string, taskID string, proof string) (*model.TaskCompletion, error) {
	f.completeCalls++
	return f.completeResult, f.completeErr
}

func newRepoTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func TestOfflineUserRepo_LocalProfile(t *testing.T) {
	db := newRepoTestDB(t)
	watcher := dal.NewWatcher()
	cache := cachemgr.NewManager(cachemgr.CacheFirst)
	src := &fakeSource{}
	repo := NewOfflineUserRepo(db, dao.GetUserProfileDAOImpl(), watcher, src, cache)

	t.Run("missing_profile_is_nil", func(t *testing.T) {
		profile, err := repo.LocalProfile(context.Background(), "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if profile != nil {
			t.Errorf("profile = %+v, want nil", profile)
		}
	})

	t.Run("cache_then_read_back", func(t *testing.T) {
		err := repo.CacheProfile(context.Background(), &model.UserProfile{
			ID:         "p-1",
			UserID:     "u-1",
			Username:   "miner01",
			TaskReward: 10,
			UpdatedAt:  "2026-01-01T00:00:00Z",
		})
		if err != nil {
			t.Fatal(err.Error())
		}

		profile, err := repo.LocalProfile(context.Background(), "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if profile == nil || profile.Username != "miner01" {
			t.Fatalf("profile = %+v", profile)
		}
		if profile.TotalCoins() != 10 {
			t.Errorf("TotalCoins = %v, want 10", profile.TotalCoins())
		}
	})
}

func TestOfflineUserRepo_GetOfflineProfile(t *testing.T) {
	db := newRepoTestDB(t)
	watcher := dal.NewWatcher()
	cache := cachemgr.NewManager(cachemgr.CacheFirst)
	repo := NewOfflineUserRepo(db, dao.GetUserProfileDAOImpl(), watcher, &fakeSource{}, cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := repo.GetOfflineProfile(ctx, "u-1")

	// First emission is the current state, nil before anything is cached.
	select {
	case profile := <-ch:
		if profile != nil {
			t.Fatalf("first emission = %+v, want nil", profile)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial emission")
	}

	// A cache write wakes the subscription with the new state.
	err := repo.CacheProfile(ctx, &model.UserProfile{
		ID: "p-1", UserID: "u-1", Username: "miner01",
	})
	if err != nil {
		t.Fatal(err.Error())
	}

	select {
	case profile := <-ch:
		if profile == nil || profile.Username != "miner01" {
			t.Fatalf("second emission = %+v", profile)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no emission after write")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// A buffered emission may still be in flight; the channel
			// must close right after.
			if _, ok := <-ch; ok {
				t.Error("channel still open after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestOfflineMiningRepo_StartAndProgress(t *testing.T) {
	db := newRepoTestDB(t)
	watcher := dal.NewWatcher()
	cache := cachemgr.NewManager(cachemgr.CacheFirst)
	repo := NewOfflineMiningRepo(db, dao.GetMiningSessionDAOImpl(), watcher, &fakeSource{}, cache)

	ctx := context.Background()

	t.Run("start_captures_locally", func(t *testing.T) {
		session, err := repo.StartSession(ctx, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if session.ID == "" {
			t.Fatal("session has no id")
		}
		if session.Completed {
			t.Error("fresh session must not be completed")
		}

		got, err := repo.LocalSession(ctx, session.ID)
		if err != nil {
			t.Fatal(err.Error())
		}
		if got == nil {
			t.Fatal("session not captured in local store")
		}
	})

	t.Run("empty_user_rejected", func(t *testing.T) {
		_, err := repo.StartSession(ctx, "")
		if err == nil {
			t.Error("expected error for empty user id")
		}
	})

	t.Run("progress_applies_to_running_session", func(t *testing.T) {
		session, err := repo.StartSession(ctx, "u-2")
		if err != nil {
			t.Fatal(err.Error())
		}

		updated, err := repo.RecordProgress(ctx, session.ID, 5.5, 30, 120)
		if err != nil {
			t.Fatal(err.Error())
		}
		if updated.CoinsEarned != 5.5 || updated.ClicksMade != 30 || updated.SessionDuration != 120 {
			t.Errorf("progress not applied: %+v", updated)
		}
	})

	t.Run("completed_session_is_immutable", func(t *testing.T) {
		done := &model.MiningSession{
			ID:          "s-done",
			UserID:      "u-3",
			CoinsEarned: 9,
			Completed:   true,
			UpdatedAt:   "2026-01-01T00:00:00Z",
		}
		if err := repo.CacheSession(ctx, done); err != nil {
			t.Fatal(err.Error())
		}

		got, err := repo.RecordProgress(ctx, "s-done", 100, 100, 100)
		if err != nil {
			t.Fatal(err.Error())
		}
		if got.CoinsEarned != 9 {
			t.Errorf("CoinsEarned = %v, completed session was mutated", got.CoinsEarned)
		}
	})
}

func TestOfflineSocialTaskRepo_CompleteTask(t *testing.T) {
	ctx := context.Background()

	newRepo := func(t *testing.T, src *fakeSource) *OfflineSocialTaskRepo {
		db := newRepoTestDB(t)
		watcher := dal.NewWatcher()
		cache := cachemgr.NewManager(cachemgr.CacheFirst)
		repo, err := NewOfflineSocialTaskRepo(db, dao.GetSocialTaskDAOImpl(),
			dao.GetTaskCompletionDAOImpl(), watcher, src, cache)
		if err != nil {
			t.Fatal(err.Error())
		}
		if err := repo.CacheTask(ctx, &model.SocialTask{
			ID: "t-1", Title: "Join Telegram", RewardCoins: 50, IsActive: true,
		}); err != nil {
			t.Fatal(err.Error())
		}
		return repo
	}

	t.Run("records_pending_when_offline", func(t *testing.T) {
		src := &fakeSource{completeErr: errors.New("offline")}
		repo := newRepo(t, src)

		completion, err := repo.CompleteTask(ctx, "u-1", "t-1", "proof")
		if err != nil {
			t.Fatal(err.Error())
		}
		if completion.Status != model.CompletionPending {
			t.Errorf("Status = %v, want pending", completion.Status)
		}

		// Local capture survives the failed report.
		local, err := repo.LocalCompletions(ctx, "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if len(local) != 1 {
			t.Fatalf("len = %v, want 1", len(local))
		}
	})

	t.Run("idempotent_second_claim", func(t *testing.T) {
		src := &fakeSource{completeErr: errors.New("offline")}
		repo := newRepo(t, src)

		first, err := repo.CompleteTask(ctx, "u-1", "t-1", "proof")
		if err != nil {
			t.Fatal(err.Error())
		}
		second, err := repo.CompleteTask(ctx, "u-1", "t-1", "proof")
		if err != nil {
			t.Fatal(err.Error())
		}
		if first.ID != second.ID {
			t.Errorf("second claim created a new record: %v != %v", first.ID, second.ID)
		}
		if src.completeCalls != 1 {
			t.Errorf("completeCalls = %v, want 1", src.completeCalls)
		}
	})

	t.Run("backend_verdict_cached", func(t *testing.T) {
		src := &fakeSource{completeResult: &model.TaskCompletion{
			ID:     "c-remote",
			UserID: "u-1",
			TaskID: "t-1",
			Status: model.CompletionVerified,
		}}
		repo := newRepo(t, src)

		completion, err := repo.CompleteTask(ctx, "u-1", "t-1", "proof")
		if err != nil {
			t.Fatal(err.Error())
		}
		if completion.Status != model.CompletionVerified {
			t.Errorf("Status = %v, want verified", completion.Status)
		}
	})

	t.Run("unknown_task_rejected", func(t *testing.T) {
		repo := newRepo(t, &fakeSource{})

		_, err := repo.CompleteTask(ctx, "u-1", "t-404", "proof")
		if err == nil {
			t.Error("expected error for unknown task")
		}
	})
}

func TestOfflineSocialTaskRepo_TaskLRU(t *testing.T) {
	ctx := context.Background()
	db := newRepoTestDB(t)
	watcher := dal.NewWatcher()
	cache := cachemgr.NewManager(cachemgr.CacheFirst)
	repo, err := NewOfflineSocialTaskRepo(db, dao.GetSocialTaskDAOImpl(),
		dao.GetTaskCompletionDAOImpl(), watcher, &fakeSource{}, cache)
	if err != nil {
		t.Fatal(err.Error())
	}

	if err := repo.CacheTask(ctx, &model.SocialTask{ID: "t-1", Title: "Follow"}); err != nil {
		t.Fatal(err.Error())
	}

	// Deleting the row behind the LRU's back: the next lookup must still be
	// served from memory.
	if _, err := dao.GetSocialTaskDAOImpl().Delete(ctx, db, "t-1"); err != nil {
		t.Fatal(err.Error())
	}

	task, err := repo.LocalTask(ctx, "t-1")
	if err != nil {
		t.Fatal(err.Error())
	}
	if task == nil {
		t.Fatal("task not served from the in-memory cache")
	}
}

func TestOfflineMiningRepo_GetSessionsWithStrategy(t *testing.T) {
	ctx := context.Background()
	db := newRepoTestDB(t)
	watcher := dal.NewWatcher()
	cache := cachemgr.NewManager(cachemgr.NetworkFirst)
	src := &fakeSource{sessions: []*model.MiningSession{
		{ID: "s-1", UserID: "u-1", CoinsEarned: 3, CreatedAt: "2026-01-01T00:00:00Z"},
	}}
	repo := NewOfflineMiningRepo(db, dao.GetMiningSessionDAOImpl(), watcher, src, cache)

	var last []*model.MiningSession
	for res := range repo.GetSessionsWithStrategy(ctx, "u-1") {
		if res.Err != nil {
			t.Fatal(res.Err.Error())
		}
		last = res.Value
	}
	if len(last) != 1 || last[0].ID != "s-1" {
		t.Fatalf("sessions = %+v", last)
	}

	// The network result was written through to the local store.
	local, err := repo.LocalSessions(ctx, "u-1")
	if err != nil {
		t.Fatal(err.Error())
	}
	if len(local) != 1 {
		t.Errorf("local sessions = %v, want 1", len(local))
	}
}
