package repos

import (
	"context"
	"time"

	"github.com/ekehi/ekehi-sync-server/cachemgr"
	"github.com/ekehi/ekehi-sync-server/cacherepo"
	"github.com/ekehi/ekehi-sync-server/dal"
	"github.com/ekehi/ekehi-sync-server/dal/dao"
	"github.com/ekehi/ekehi-sync-server/errcode"
	"github.com/ekehi/ekehi-sync-server/model"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"gorm.io/gorm"
)

// taskCacheSize bounds the in-memory task definition cache. Task catalogs
// are small; the bound exists to keep an unbounded backend from growing
// client memory.
const taskCacheSize = 256

// OfflineSocialTaskRepo caches the global task catalog and the per-user
// completion records. Definitions are read-mostly and additionally sit
// behind an in-memory LRU in front of the store.
type OfflineSocialTaskRepo struct {
	db            *gorm.DB
	taskDAO       dao.SocialTaskDAO
	completionDAO dao.TaskCompletionDAO
	watcher       *dal.Watcher
	source        SocialTaskSource
	cache         *cachemgr.Manager
	taskCache     *lru.Cache
}

func NewOfflineSocialTaskRepo(db *gorm.DB, taskDAO dao.SocialTaskDAO, completionDAO dao.TaskCompletionDAO,
	watcher *dal.Watcher, source SocialTaskSource, cache *cachemgr.Manager) (*OfflineSocialTaskRepo, error) {
	taskCache, err := lru.New(taskCacheSize)
	if err != nil {
		return nil, err
	}
	return &OfflineSocialTaskRepo{
		db:            db,
		taskDAO:       taskDAO,
		completionDAO: completionDAO,
		watcher:       watcher,
		source:        source,
		cache:         cache,
		taskCache:     taskCache,
	}, nil
}

// GetOfflineTasks subscribes to the locally cached task catalog. Task
// definitions are shared, so the subscription is not scoped to a user.
func (r *OfflineSocialTaskRepo) GetOfflineTasks(ctx context.Context) <-chan []*model.SocialTask {
	out := make(chan []*model.SocialTask, 1)
	signals, cancel := r.watcher.Subscribe(dal.KindSocialTask, "")

	go func() {
		defer close(out)
		defer cancel()

		for {
			tasks, err := r.LocalTasks(ctx)
			if err != nil {
				log.Errorf("Local store read failed for task catalog: %v", err)
				return
			}
			select {
			case out <- tasks:
			case <-ctx.Done():
				return
			}

			select {
			case <-signals:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// GetOfflineCompletions subscribes to the locally cached completion records
// of userID.
func (r *OfflineSocialTaskRepo) GetOfflineCompletions(ctx context.Context, userID string) <-chan []*model.TaskCompletion {
	out := make(chan []*model.TaskCompletion, 1)
	signals, cancel := r.watcher.Subscribe(dal.KindTaskCompletion, userID)

	go func() {
		defer close(out)
		defer cancel()

		for {
			completions, err := r.LocalCompletions(ctx, userID)
			if err != nil {
				log.Errorf("Local store read failed for completions of %v: %v", userID, err)
				return
			}
			select {
			case out <- completions:
			case <-ctx.Done():
				return
			}

			select {
			case <-signals:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// LocalTasks reads the cached catalog once, sorted by the backend order.
func (r *OfflineSocialTaskRepo) LocalTasks(ctx context.Context) ([]*model.SocialTask, error) {
	infos, err := r.taskDAO.GetAll(ctx, r.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	tasks := make([]*model.SocialTask, 0, len(infos))
	for _, info := range infos {
		tasks = append(tasks, model.ConvertDOToSocialTask(info))
	}
	return tasks, nil
}

// LocalTask reads one task definition, consulting the in-memory LRU before
// the store. A missing definition is (nil, nil).
func (r *OfflineSocialTaskRepo) LocalTask(ctx context.Context, id string) (*model.SocialTask, error) {
	if cached, ok := r.taskCache.Get(id); ok {
		return cached.(*model.SocialTask), nil
	}
	info, err := r.taskDAO.GetByID(ctx, r.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	task := model.ConvertDOToSocialTask(info)
	r.taskCache.Add(id, task)
	return task, nil
}

// LocalCompletions reads the cached completion records of userID once.
func (r *OfflineSocialTaskRepo) LocalCompletions(ctx context.Context, userID string) ([]*model.TaskCompletion, error) {
	infos, err := r.completionDAO.GetByUserID(ctx, r.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	completions := make([]*model.TaskCompletion, 0, len(infos))
	for _, info := range infos {
		completions = append(completions, model.ConvertDOToTaskCompletion(info))
	}
	return completions, nil
}

// RemoteTasks fetches the canonical task catalog.
func (r *OfflineSocialTaskRepo) RemoteTasks(ctx context.Context) ([]*model.SocialTask, error) {
	tasks, err := r.source.GetTasks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch remote tasks")
	}
	return tasks, nil
}

// RemoteCompletions fetches the canonical completion records of userID.
func (r *OfflineSocialTaskRepo) RemoteCompletions(ctx context.Context, userID string) ([]*model.TaskCompletion, error) {
	if userID == "" {
		return nil, errcode.ErrEmptyUserID
	}
	completions, err := r.source.GetUserTasks(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch remote completions")
	}
	return completions, nil
}

// CacheTask upserts one task definition, refreshes the LRU and wakes
// catalog subscribers.
func (r *OfflineSocialTaskRepo) CacheTask(ctx context.Context, task *model.SocialTask) error {
	if task == nil {
		return errcode.ErrNilEntity
	}
	err := r.taskDAO.Upsert(ctx, r.db.WithContext(ctx), model.ConvertSocialTaskToDO(task))
	if err != nil {
		return err
	}
	r.taskCache.Add(task.ID, task)
	r.watcher.Publish(dal.KindSocialTask, "")
	return nil
}

// CacheCompletion upserts one completion record and wakes subscribers of
// its owner.
func (r *OfflineSocialTaskRepo) CacheCompletion(ctx context.Context, completion *model.TaskCompletion) error {
	if completion == nil {
		return errcode.ErrNilEntity
	}
	err := r.completionDAO.Upsert(ctx, r.db.WithContext(ctx), model.ConvertTaskCompletionToDO(completion))
	if err != nil {
		return err
	}
	r.watcher.Publish(dal.KindTaskCompletion, completion.UserID)
	return nil
}

// SyncTasks fetches the canonical catalog and persists it. On a remote
// failure the local catalog is left untouched.
func (r *OfflineSocialTaskRepo) SyncTasks(ctx context.Context) ([]*model.SocialTask, error) {
	tasks, err := r.RemoteTasks(ctx)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if err := r.CacheTask(ctx, task); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// CompleteTask records the completion of taskID by userID. The operation
// is idempotent: a completion record already present means the reward was
// granted before, and the existing record is returned unchanged. A new
// completion is captured locally first, then reported to the backend; a
// report failure leaves the record pending for the next sync instead of
// surfacing an error.
func (r *OfflineSocialTaskRepo) CompleteTask(ctx context.Context, userID string, taskID string, proof string) (*model.TaskCompletion, error) {
	if userID == "" {
		return nil, errcode.ErrEmptyUserID
	}
	existing, err := r.completionDAO.GetByUserAndTask(ctx, r.db.WithContext(ctx), userID, taskID)
	if err == nil {
		return model.ConvertDOToTaskCompletion(existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	task, err := r.LocalTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errcode.ErrTaskNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339)
	completion := &model.TaskCompletion{
		ID:          uuid.NewString(),
		UserID:      userID,
		TaskID:      taskID,
		Status:      model.CompletionPending,
		Proof:       proof,
		CompletedAt: now,
		UpdatedAt:   now,
	}
	if err := r.CacheCompletion(ctx, completion); err != nil {
		return nil, err
	}

	if remote, err := r.source.CompleteTask(ctx, userID, taskID, proof); err != nil {
		// The local record stays pending and is reconciled by the next
		// sync pass.
		log.Warnf("Unable to report completion of task %v for %v: %v", taskID, userID, err)
	} else if remote != nil {
		if err := r.CacheCompletion(ctx, remote); err != nil {
			return nil, err
		}
		return remote, nil
	}
	return completion, nil
}

// GetTasksWithStrategy fetches the task catalog under the currently
// configured cache strategy. An empty catalog is a legal present value.
func (r *OfflineSocialTaskRepo) GetTasksWithStrategy(ctx context.Context) <-chan cacherepo.Result[[]*model.SocialTask] {
	return cacherepo.Execute(ctx, r.cache.Strategy(), cacherepo.Ops[[]*model.SocialTask]{
		ReadCache: func(ctx context.Context) ([]*model.SocialTask, error) {
			return r.LocalTasks(ctx)
		},
		CallNetwork: func(ctx context.Context) ([]*model.SocialTask, error) {
			return r.RemoteTasks(ctx)
		},
		SaveCache: func(ctx context.Context, tasks []*model.SocialTask) error {
			for _, task := range tasks {
				if err := r.CacheTask(ctx, task); err != nil {
					return err
				}
			}
			return nil
		},
		IsPresent: func(tasks []*model.SocialTask) bool {
			return tasks != nil
		},
	})
}
