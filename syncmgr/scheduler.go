package syncmgr

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-faster/errors"
)

// Scheduler drives periodic reconciliation passes for a set of users. A
// user registered with Track is swept on every tick until Untrack is
// called for them.
type Scheduler struct {
	mgr      *SyncManager
	interval time.Duration
	sched    gocron.Scheduler

	mtx   sync.Mutex
	users map[string]struct{}
}

// NewScheduler creates a scheduler that runs a sync pass for every
// tracked user once per interval.
func NewScheduler(mgr *SyncManager, interval time.Duration) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}
	s := &Scheduler{
		mgr:      mgr,
		interval: interval,
		sched:    sched,
		users:    make(map[string]struct{}),
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.sweep),
	)
	if err != nil {
		return nil, errors.Wrap(err, "schedule sync job")
	}
	return s, nil
}

// Track adds userID to the periodic sweep.
func (s *Scheduler) Track(userID string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.users[userID] = struct{}{}
}

// Untrack removes userID from the periodic sweep.
func (s *Scheduler) Untrack(userID string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.users, userID)
}

// TrackedUsers returns the users currently swept on each tick.
func (s *Scheduler) TrackedUsers() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	users := make([]string, 0, len(s.users))
	for u := range s.users {
		users = append(users, u)
	}
	return users
}

func (s *Scheduler) sweep() {
	for _, userID := range s.TrackedUsers() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		if _, err := s.mgr.SyncAll(ctx, userID); err != nil {
			log.Warnf("Periodic sync for user %s failed: %v", userID, err)
		}
		cancel()
	}
}

// Start begins the periodic sweeps.
func (s *Scheduler) Start() {
	log.Infof("Starting sync scheduler, interval %v", s.interval)
	s.sched.Start()
}

// Stop halts the sweeps. Any pass already in flight finishes.
func (s *Scheduler) Stop() error {
	log.Info("Sync scheduler shutting down")
	return s.sched.Shutdown()
}
