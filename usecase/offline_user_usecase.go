package usecase

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/model"
	"github.com/ekehi/ekehi-sync-server/repos"
	"github.com/ekehi/ekehi-sync-server/utils"
)

// OfflineUserUseCase exposes the user profile to consumers as resource
// streams. Every stream opens with a loading emission so the consumer can
// render a spinner before the first value or error arrives.
type OfflineUserUseCase struct {
	repo *repos.OfflineUserRepo
}

// NewOfflineUserUseCase creates a use case over the given repository.
func NewOfflineUserUseCase(repo *repos.OfflineUserRepo) *OfflineUserUseCase {
	return &OfflineUserUseCase{repo: repo}
}

// ObserveProfile streams the local profile and every subsequent change to
// it until ctx is cancelled. A missing profile is delivered as a success
// with nil data, not an error; offline consumers render it as empty state.
func (u *OfflineUserUseCase) ObserveProfile(ctx context.Context, userID string) <-chan model.Resource[*model.UserProfile] {
	out := make(chan model.Resource[*model.UserProfile], 1)
	out <- model.Loading[*model.UserProfile]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		for profile := range u.repo.GetOfflineProfile(ctx, userID) {
			select {
			case out <- model.Success(profile):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// FetchProfile resolves the profile once under the currently configured
// cache strategy.
func (u *OfflineUserUseCase) FetchProfile(ctx context.Context, userID string) <-chan model.Resource[*model.UserProfile] {
	out := make(chan model.Resource[*model.UserProfile], 3)
	out <- model.Loading[*model.UserProfile]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		for res := range u.repo.GetProfileWithStrategy(ctx, userID) {
			out <- toResource(res)
		}
	}()
	return out
}

// UpdateProfile applies a partial update to the local profile and streams
// the outcome.
func (u *OfflineUserUseCase) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) <-chan model.Resource[*model.UserProfile] {
	out := make(chan model.Resource[*model.UserProfile], 2)
	out <- model.Loading[*model.UserProfile]()
	go func() {
		defer utils.MyRecover()
		defer close(out)
		profile, err := u.repo.UpdateProfile(ctx, userID, fields)
		if err != nil {
			log.Errorf("Fail to update profile of user %v: %v", userID, err)
			out <- model.Failure[*model.UserProfile](err.Error())
			return
		}
		out <- model.Success(profile)
	}()
	return out
}
