package usecase

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/model"
	"github.com/ekehi/ekehi-sync-server/repos"
	"github.com/ekehi/ekehi-sync-server/utils"
)

// OfflineSocialTaskUseCase exposes the task catalog and per-user
// completions to consumers as resource streams.
type OfflineSocialTaskUseCase struct {
	repo *repos.OfflineSocialTaskRepo
}

// NewOfflineSocialTaskUseCase creates a use case over the given repository.
func NewOfflineSocialTaskUseCase(repo *repos.OfflineSocialTaskRepo) *OfflineSocialTaskUseCase {
	return &OfflineSocialTaskUseCase{repo: repo}
}

// ObserveTasks streams the task catalog and every change to it until ctx
// is cancelled.
func (u *OfflineSocialTaskUseCase) ObserveTasks(ctx context.Context) <-chan model.Resource[[]*model.SocialTask] {
	out := make(chan model.Resource[[]*model.SocialTask], 1)
	out <- model.Loading[[]*model.SocialTask]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		for tasks := range u.repo.GetOfflineTasks(ctx) {
			select {
			case out <- model.Success(tasks):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ObserveCompletions streams the user's completion records and every
// change to them until ctx is cancelled.
func (u *OfflineSocialTaskUseCase) ObserveCompletions(ctx context.Context, userID string) <-chan model.Resource[[]*model.TaskCompletion] {
	out := make(chan model.Resource[[]*model.TaskCompletion], 1)
	out <- model.Loading[[]*model.TaskCompletion]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		for completions := range u.repo.GetOfflineCompletions(ctx, userID) {
			select {
			case out <- model.Success(completions):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// FetchTasks resolves the task catalog once under the currently
// configured cache strategy.
func (u *OfflineSocialTaskUseCase) FetchTasks(ctx context.Context) <-chan model.Resource[[]*model.SocialTask] {
	out := make(chan model.Resource[[]*model.SocialTask], 3)
	out <- model.Loading[[]*model.SocialTask]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		for res := range u.repo.GetTasksWithStrategy(ctx) {
			out <- toResource(res)
		}
	}()
	return out
}

// FetchCompletions resolves the user's completion records from the local
// store once. Completions are only ever read locally; reconciliation with
// the backend happens through the sync pass.
func (u *OfflineSocialTaskUseCase) FetchCompletions(ctx context.Context, userID string) <-chan model.Resource[[]*model.TaskCompletion] {
	out := make(chan model.Resource[[]*model.TaskCompletion], 2)
	out <- model.Loading[[]*model.TaskCompletion]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		completions, err := u.repo.LocalCompletions(ctx, userID)
		if err != nil {
			log.Errorf("Fail to read completions of user %v: %v", userID, err)
			out <- model.Failure[[]*model.TaskCompletion](err.Error())
			return
		}
		out <- model.Success(completions)
	}()
	return out
}

// CompleteTask records the completion of a task by a user and streams the
// resulting completion record. Completing the same task twice returns the
// original record; the reward is never granted again.
func (u *OfflineSocialTaskUseCase) CompleteTask(ctx context.Context, userID, taskID, proof string) <-chan model.Resource[*model.TaskCompletion] {
	out := make(chan model.Resource[*model.TaskCompletion], 2)
	out <- model.Loading[*model.TaskCompletion]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		completion, err := u.repo.CompleteTask(ctx, userID, taskID, proof)
		if err != nil {
			log.Errorf("Fail to complete task %v for user %v: %v", taskID, userID, err)
			out <- model.Failure[*model.TaskCompletion](err.Error())
			return
		}
		out <- model.Success(completion)
	}()
	return out
}
