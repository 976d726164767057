package usecase

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/model"
	"github.com/ekehi/ekehi-sync-server/repos"
	"github.com/ekehi/ekehi-sync-server/utils"
)

// OfflineMiningUseCase exposes mining sessions to consumers as resource
// streams.
type OfflineMiningUseCase struct {
	repo *repos.OfflineMiningRepo
}

// NewOfflineMiningUseCase creates a use case over the given repository.
func NewOfflineMiningUseCase(repo *repos.OfflineMiningRepo) *OfflineMiningUseCase {
	return &OfflineMiningUseCase{repo: repo}
}

// ObserveSessions streams the user's session history and every change to
// it until ctx is cancelled. An empty history is a success with an empty
// list.
func (u *OfflineMiningUseCase) ObserveSessions(ctx context.Context, userID string) <-chan model.Resource[[]*model.MiningSession] {
	out := make(chan model.Resource[[]*model.MiningSession], 1)
	out <- model.Loading[[]*model.MiningSession]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		for sessions := range u.repo.GetOfflineSessions(ctx, userID) {
			select {
			case out <- model.Success(sessions):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// FetchSessions resolves the session history once under the currently
// configured cache strategy.
func (u *OfflineMiningUseCase) FetchSessions(ctx context.Context, userID string) <-chan model.Resource[[]*model.MiningSession] {
	out := make(chan model.Resource[[]*model.MiningSession], 3)
	out <- model.Loading[[]*model.MiningSession]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		for res := range u.repo.GetSessionsWithStrategy(ctx, userID) {
			out <- toResource(res)
		}
	}()
	return out
}

// StartSession opens a new mining session for the user and streams the
// outcome. The session is captured locally before any network activity so
// mining works offline.
func (u *OfflineMiningUseCase) StartSession(ctx context.Context, userID string) <-chan model.Resource[*model.MiningSession] {
	out := make(chan model.Resource[*model.MiningSession], 2)
	out <- model.Loading[*model.MiningSession]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		session, err := u.repo.StartSession(ctx, userID)
		if err != nil {
			log.Errorf("Fail to start mining session for user %v: %v", userID, err)
			out <- model.Failure[*model.MiningSession](err.Error())
			return
		}
		out <- model.Success(session)
	}()
	return out
}

// RecordProgress folds earned coins and clicks into an open session and
// streams the updated copy.
func (u *OfflineMiningUseCase) RecordProgress(ctx context.Context, id string, coinsEarned float64, clicksMade int, duration int) <-chan model.Resource[*model.MiningSession] {
	out := make(chan model.Resource[*model.MiningSession], 2)
	out <- model.Loading[*model.MiningSession]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		session, err := u.repo.RecordProgress(ctx, id, coinsEarned, clicksMade, duration)
		if err != nil {
			log.Errorf("Fail to record progress of session %v: %v", id, err)
			out <- model.Failure[*model.MiningSession](err.Error())
			return
		}
		out <- model.Success(session)
	}()
	return out
}
