package repos

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/cachemgr"
	"github.com/ekehi/ekehi-sync-server/cacherepo"
	"github.com/ekehi/ekehi-sync-server/dal"
	"github.com/ekehi/ekehi-sync-server/dal/dao"
	"github.com/ekehi/ekehi-sync-server/errcode"
	"github.com/ekehi/ekehi-sync-server/model"

	"github.com/go-faster/errors"
	"gorm.io/gorm"
)

// OfflineUserRepo serves the user profile from the local store first and
// reconciles it against the remote source. It composes its collaborators
// explicitly: the DAO, the change watcher, the remote accessor and the
// cache strategy holder.
type OfflineUserRepo struct {
	db      *gorm.DB
	dao     dao.UserProfileDAO
	watcher *dal.Watcher
	source  UserProfileSource
	cache   *cachemgr.Manager
}

func NewOfflineUserRepo(db *gorm.DB, profileDAO dao.UserProfileDAO, watcher *dal.Watcher,
	source UserProfileSource, cache *cachemgr.Manager) *OfflineUserRepo {
	return &OfflineUserRepo{
		db:      db,
		dao:     profileDAO,
		watcher: watcher,
		source:  source,
		cache:   cache,
	}
}

// GetOfflineProfile subscribes to the locally cached profile of userID. The
// current state (possibly nil when nothing is cached yet) is delivered
// immediately, then again after every store write for that user, until ctx
// is cancelled. Cancellation releases the underlying store listener. The
// channel closes early only on an unrecoverable local-store failure.
func (r *OfflineUserRepo) GetOfflineProfile(ctx context.Context, userID string) <-chan *model.UserProfile {
	out := make(chan *model.UserProfile, 1)
	signals, cancel := r.watcher.Subscribe(dal.KindUserProfile, userID)

	go func() {
		defer close(out)
		defer cancel()

		for {
			profile, err := r.LocalProfile(ctx, userID)
			if err != nil {
				log.Errorf("Local store read failed for profile %v: %v", userID, err)
				return
			}
			select {
			case out <- profile:
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

// LocalProfile reads the cached profile once. A missing row is (nil, nil);
// any other storage failure is returned as-is.
func (r *OfflineUserRepo) LocalProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	info, err := r.dao.GetByUserID(ctx, r.db.WithContext(ctx), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ConvertDOToUserProfile(info), nil
}

// RemoteProfile fetches the canonical profile without touching the local
// store.
func (r *OfflineUserRepo) RemoteProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	if userID == "" {
		return nil, errcode.ErrEmptyUserID
	}
	profile, err := r.source.GetProfile(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch remote profile")
	}
	if profile == nil {
		return nil, errcode.ErrRemoteEmpty
	}
	return profile, nil
}

// CacheProfile upserts the profile into the local store and wakes every
// live subscriber for its owner. The write is idempotent.
func (r *OfflineUserRepo) CacheProfile(ctx context.Context, profile *model.UserProfile) error {
	if profile == nil {
		return errcode.ErrNilEntity
	}
	err := r.dao.Upsert(ctx, r.db.WithContext(ctx), model.ConvertUserProfileToDO(profile))
	if err != nil {
		return err
	}
	r.watcher.Publish(dal.KindUserProfile, profile.UserID)
	return nil
}

// SyncProfile fetches the canonical profile and persists it, waking live
// subscribers. On a remote failure the local store is left untouched and
// the last cached value remains the visible state.
func (r *OfflineUserRepo) SyncProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile, err := r.RemoteProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := r.CacheProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetProfileWithStrategy fetches the profile under the currently configured
// cache strategy.
func (r *OfflineUserRepo) GetProfileWithStrategy(ctx context.Context, userID string) <-chan cacherepo.Result[*model.UserProfile] {
	return cacherepo.Execute(ctx, r.cache.Strategy(), cacherepo.Ops[*model.UserProfile]{
		ReadCache: func(ctx context.Context) (*model.UserProfile, error) {
			profile, err := r.LocalProfile(ctx, userID)
			if err != nil {
				return nil, err
			}
			if profile == nil {
				return nil, errcode.ErrProfileNotFound
			}
			return profile, nil
		},
		CallNetwork: func(ctx context.Context) (*model.UserProfile, error) {
			return r.RemoteProfile(ctx, userID)
		},
		SaveCache: func(ctx context.Context, profile *model.UserProfile) error {
			return r.CacheProfile(ctx, profile)
		},
		IsPresent: func(profile *model.UserProfile) bool {
			return profile != nil
		},
	})
}

// UpdateProfile pushes a partial update to the remote source and caches the
// returned canonical copy.
func (r *OfflineUserRepo) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) (*model.UserProfile, error) {
	profile, err := r.source.UpdateProfile(ctx, userID, fields)
	if err != nil {
		return nil, errors.Wrap(err, "update remote profile")
	}
	if profile == nil {
		return nil, errcode.ErrRemoteEmpty
	}
	if err := r.CacheProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
