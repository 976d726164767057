package dal

import "sync"

// EntityKind identifies one cached entity kind in the local store.
type EntityKind int

const (
	KindUserProfile EntityKind = iota
	KindMiningSession
	KindSocialTask
	KindTaskCompletion
)

// entityKindStrings is a map of entity kinds back to their constant names
// for pretty printing.
var entityKindStrings = map[EntityKind]string{
	KindUserProfile:    "KindUserProfile",
	KindMiningSession:  "KindMiningSession",
	KindSocialTask:     "KindSocialTask",
	KindTaskCompletion: "KindTaskCompletion",
}

func (k EntityKind) String() string {
	if s, ok := entityKindStrings[k]; ok {
		return s
	}
	return "Unknown EntityKind"
}

type watchKey struct {
	kind EntityKind
	// userID is the owning user, or empty for globally shared rows
	// (social task definitions).
	userID string
}

type watchSub struct {
	key    watchKey
	signal chan struct{}
}

// Watcher is the local store's change bus. Repositories publish after every
// successful write; live queries subscribe and re-read the store on each
// signal. A subscriber channel has capacity one and coalesces bursts: the
// receiver always observes the state written by the last publish, which
// keeps emissions ordered by store-write order.
type Watcher struct {
	mtx    sync.RWMutex
	subs   map[uint64]*watchSub
	nextID uint64
}

func NewWatcher() *Watcher {
	return &Watcher{
		subs: make(map[uint64]*watchSub),
	}
}

// Subscribe registers interest in (kind, userID). The returned cancel
// function releases the listener; failing to call it leaks a subscription.
func (w *Watcher) Subscribe(kind EntityKind, userID string) (<-chan struct{}, func()) {
	sub := &watchSub{
		key:    watchKey{kind: kind, userID: userID},
		signal: make(chan struct{}, 1),
	}

	w.mtx.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = sub
	w.mtx.Unlock()

	cancel := func() {
		w.mtx.Lock()
		delete(w.subs, id)
		w.mtx.Unlock()
	}
	return sub.signal, cancel
}

// Publish wakes every subscriber registered for (kind, userID). It never
// blocks: a subscriber that has not drained its pending signal keeps exactly
// one queued.
func (w *Watcher) Publish(kind EntityKind, userID string) {
	key := watchKey{kind: kind, userID: userID}

	w.mtx.RLock()
	for _, sub := range w.subs {
		if sub.key != key {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
	w.mtx.RUnlock()
}

// NumSubscribers reports the number of live subscriptions.
func (w *Watcher) NumSubscribers() int {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return len(w.subs)
}
