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
	"gorm.io/gorm"
)

// OfflineMiningRepo caches mining sessions locally and reconciles them
// against the remote source. Sessions are born locally when a run starts
// and become immutable once a sync confirms their completion.
type OfflineMiningRepo struct {
	db      *gorm.DB
	dao     dao.MiningSessionDAO
	watcher *dal.Watcher
	source  MiningSessionSource
	cache   *cachemgr.Manager
}

func NewOfflineMiningRepo(db *gorm.DB, sessionDAO dao.MiningSessionDAO, watcher *dal.Watcher,
	source MiningSessionSource, cache *cachemgr.Manager) *OfflineMiningRepo {
	return &OfflineMiningRepo{
		db:      db,
		dao:     sessionDAO,
		watcher: watcher,
		source:  source,
		cache:   cache,
	}
}

// GetOfflineSessions subscribes to the locally cached sessions of userID,
// most recent first. The current state is delivered immediately, then again
// after every store write for that user, until ctx is cancelled.
func (r *OfflineMiningRepo) GetOfflineSessions(ctx context.Context, userID string) <-chan []*model.MiningSession {
	out := make(chan []*model.MiningSession, 1)
	signals, cancel := r.watcher.Subscribe(dal.KindMiningSession, userID)

	go func() {
		defer close(out)
		defer cancel()

		for {
			sessions, err := r.LocalSessions(ctx, userID)
			if err != nil {
				log.Errorf("Local store read failed for sessions of %v: %v", userID, err)
				return
			}
			select {
			case out <- sessions:
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

// LocalSessions reads the cached sessions of userID once.
func (r *OfflineMiningRepo) LocalSessions(ctx context.Context, userID string) ([]*model.MiningSession, error) {
	infos, err := r.dao.GetByUserID(ctx, r.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	sessions := make([]*model.MiningSession, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, model.ConvertDOToMiningSession(info))
	}
	return sessions, nil
}

// LocalSession reads one cached session. A missing row is (nil, nil).
func (r *OfflineMiningRepo) LocalSession(ctx context.Context, id string) (*model.MiningSession, error) {
	info, err := r.dao.GetByID(ctx, r.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ConvertDOToMiningSession(info), nil
}

// RemoteSessions fetches the canonical session list for userID.
func (r *OfflineMiningRepo) RemoteSessions(ctx context.Context, userID string) ([]*model.MiningSession, error) {
	if userID == "" {
		return nil, errcode.ErrEmptyUserID
	}
	sessions, err := r.source.GetSessions(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch remote sessions")
	}
	return sessions, nil
}

// CacheSession upserts one session and wakes live subscribers of its owner.
func (r *OfflineMiningRepo) CacheSession(ctx context.Context, session *model.MiningSession) error {
	if session == nil {
		return errcode.ErrNilEntity
	}
	err := r.dao.Upsert(ctx, r.db.WithContext(ctx), model.ConvertMiningSessionToDO(session))
	if err != nil {
		return err
	}
	r.watcher.Publish(dal.KindMiningSession, session.UserID)
	return nil
}

// StartSession creates a fresh local session for userID and caches it
// immediately, before any network round trip, so the run survives a crash
// or connectivity loss.
func (r *OfflineMiningRepo) StartSession(ctx context.Context, userID string) (*model.MiningSession, error) {
	if userID == "" {
		return nil, errcode.ErrEmptyUserID
	}
	now := time.Now().UTC().Format(time.RFC3339)
	session := &model.MiningSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.CacheSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// RecordProgress applies in-run progress to a locally cached session. A
// session that already completed is immutable.
func (r *OfflineMiningRepo) RecordProgress(ctx context.Context, id string, coinsEarned float64, clicksMade int, duration int) (*model.MiningSession, error) {
	session, err := r.LocalSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errcode.ErrSessionNotFound
	}
	if session.Completed {
		return session, nil
	}
	session.CoinsEarned = coinsEarned
	session.ClicksMade = clicksMade
	session.SessionDuration = duration
	session.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := r.CacheSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SyncSession fetches the canonical copy of one session and persists it.
// On a remote failure the local store is left untouched.
func (r *OfflineMiningRepo) SyncSession(ctx context.Context, id string) (*model.MiningSession, error) {
	session, err := r.source.GetSession(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "fetch remote session")
	}
	if session == nil {
		return nil, errcode.ErrRemoteEmpty
	}
	if err := r.CacheSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSessionsWithStrategy fetches the session list under the currently
// configured cache strategy. An empty list is a legal present value and is
// written through; only a nil payload is treated as absent.
func (r *OfflineMiningRepo) GetSessionsWithStrategy(ctx context.Context, userID string) <-chan cacherepo.Result[[]*model.MiningSession] {
	return cacherepo.Execute(ctx, r.cache.Strategy(), cacherepo.Ops[[]*model.MiningSession]{
		ReadCache: func(ctx context.Context) ([]*model.MiningSession, error) {
			return r.LocalSessions(ctx, userID)
		},
		CallNetwork: func(ctx context.Context) ([]*model.MiningSession, error) {
			return r.RemoteSessions(ctx, userID)
		},
		SaveCache: func(ctx context.Context, sessions []*model.MiningSession) error {
			for _, session := range sessions {
				if err := r.CacheSession(ctx, session); err != nil {
					return err
				}
			}
			return nil
		},
		IsPresent: func(sessions []*model.MiningSession) bool {
			return sessions != nil
		},
	})
}
