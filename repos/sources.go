package repos

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/model"
)

// The remote backend is an external collaborator. Repositories consume it
// through these per-entity accessor interfaces; implementations must
// convert every transport failure into an error return and never panic
// across this seam.

type UserProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) (*model.UserProfile, error)
}

type MiningSessionSource interface {
	CreateSession(ctx context.Context, session *model.MiningSession) (*model.MiningSession, error)
	UpdateSession(ctx context.Context, session *model.MiningSession) (*model.MiningSession, error)
	GetSession(ctx context.Context, id string) (*model.MiningSession, error)
	GetSessions(ctx context.Context, userID string) ([]*model.MiningSession, error)
}

type SocialTaskSource interface {
	GetTasks(ctx context.Context) ([]*model.SocialTask, error)
	GetUserTasks(ctx context.Context, userID string) ([]*model.TaskCompletion, error)
	CompleteTask(ctx context.Context, userID string, taskID string, proof string) (*model.TaskCompletion, error)
}
