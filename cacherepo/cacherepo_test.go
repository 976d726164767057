package cacherepo

import (
	"context"
	"errors"
	"testing"

	"github.com/ekehi/ekehi-sync-server/cachemgr"
)

// collect drains every emission from a strategy execution.
func collect[T any](ch <-chan Result[T]) []Result[T] {
	var results []Result[T]
	for r := range ch {
		results = append(results, r)
	}
	return results
}

func TestExecute_CacheFirst(t *testing.T) {
	t.Run("cache_hit_then_refresh", func(t *testing.T) {
		var saved string
		ops := Ops[string]{
			ReadCache:   func(ctx context.Context) (string, error) { return "stale", nil },
			CallNetwork: func(ctx context.Context) (string, error) { return "fresh", nil },
			SaveCache: func(ctx context.Context, v string) error {
				saved = v
				return nil
			},
		}

		results := collect(Execute(context.Background(), cachemgr.CacheFirst, ops))
		if len(results) != 2 {
			t.Fatalf("emissions = %v, want 2", len(results))
		}
		if results[0].Value != "stale" || results[1].Value != "fresh" {
			t.Errorf("emissions = [%v %v], want [stale fresh]", results[0].Value, results[1].Value)
		}
		if saved != "fresh" {
			t.Errorf("saved = %v, want fresh", saved)
		}
	})

	t.Run("cache_miss_network_hit", func(t *testing.T) {
		ops := Ops[string]{
			ReadCache:   func(ctx context.Context) (string, error) { return "", errors.New("no rows") },
			CallNetwork: func(ctx context.Context) (string, error) { return "fresh", nil },
			SaveCache:   func(ctx context.Context, v string) error { return nil },
		}

		results := collect(Execute(context.Background(), cachemgr.CacheFirst, ops))
		if len(results) != 1 {
			t.Fatalf("emissions = %v, want 1", len(results))
		}
		if results[0].Value != "fresh" {
			t.Errorf("value = %v, want fresh", results[0].Value)
		}
	})

	t.Run("refresh_failure_keeps_cached_state", func(t *testing.T) {
		ops := Ops[string]{
			ReadCache:   func(ctx context.Context) (string, error) { return "stale", nil },
			CallNetwork: func(ctx context.Context) (string, error) { return "", errors.New("offline") },
			SaveCache:   func(ctx context.Context, v string) error { return nil },
		}

		results := collect(Execute(context.Background(), cachemgr.CacheFirst, ops))
		if len(results) != 1 {
			t.Fatalf("emissions = %v, want 1", len(results))
		}
		if !results[0].IsSuccess() || results[0].Value != "stale" {
			t.Errorf("result = %+v, want success stale", results[0])
		}
	})

	t.Run("absent_value_not_persisted", func(t *testing.T) {
		saveCalled := false
		ops := Ops[*string]{
			ReadCache:   func(ctx context.Context) (*string, error) { return nil, errors.New("no rows") },
			CallNetwork: func(ctx context.Context) (*string, error) { return nil, nil },
			SaveCache: func(ctx context.Context, v *string) error {
				saveCalled = true
				return nil
			},
			IsPresent: func(v *string) bool { return v != nil },
		}

		results := collect(Execute(context.Background(), cachemgr.CacheFirst, ops))
		if len(results) != 0 {
			t.Fatalf("emissions = %v, want 0", len(results))
		}
		if saveCalled {
			t.Error("absent value was persisted")
		}
	})
}

func TestExecute_NetworkFirst(t *testing.T) {
	t.Run("network_hit", func(t *testing.T) {
		ops := Ops[string]{
			ReadCache:   func(ctx context.Context) (string, error) { return "stale", nil },
			CallNetwork: func(ctx context.Context) (string, error) { return "fresh", nil },
			SaveCache:   func(ctx context.Context, v string) error { return nil },
		}

		results := collect(Execute(context.Background(), cachemgr.NetworkFirst, ops))
		if len(results) != 1 || results[0].Value != "fresh" {
			t.Errorf("results = %+v, want single fresh", results)
		}
	})

	t.Run("network_failure_masked_by_cache", func(t *testing.T) {
		ops := Ops[string]{
			ReadCache:   func(ctx context.Context) (string, error) { return "stale", nil },
			CallNetwork: func(ctx context.Context) (string, error) { return "", errors.New("offline") },
			SaveCache:   func(ctx context.Context, v string) error { return nil },
		}

		results := collect(Execute(context.Background(), cachemgr.NetworkFirst, ops))
		if len(results) != 1 {
			t.Fatalf("emissions = %v, want 1", len(results))
		}
		if !results[0].IsSuccess() || results[0].Value != "stale" {
			t.Errorf("result = %+v, want success stale", results[0])
		}
	})

	t.Run("absent_value_emitted_but_not_persisted", func(t *testing.T) {
		saveCalled := false
		ops := Ops[*string]{
			ReadCache:   func(ctx context.Context) (*string, error) { return nil, errors.New("no rows") },
			CallNetwork: func(ctx context.Context) (*string, error) { return nil, nil },
			SaveCache: func(ctx context.Context, v *string) error {
				saveCalled = true
				return nil
			},
			IsPresent: func(v *string) bool { return v != nil },
		}

		results := collect(Execute(context.Background(), cachemgr.NetworkFirst, ops))
		if len(results) != 1 {
			t.Fatalf("emissions = %v, want 1", len(results))
		}
		if !results[0].IsSuccess() || results[0].Value != nil {
			t.Errorf("result = %+v, want success with absent value", results[0])
		}
		if saveCalled {
			t.Error("absent value was persisted")
		}
	})

	t.Run("both_fail_emits_network_error", func(t *testing.T) {
		netErr := errors.New("offline")
		ops := Ops[string]{
			ReadCache:   func(ctx context.Context) (string, error) { return "", errors.New("no rows") },
			CallNetwork: func(ctx context.Context) (string, error) { return "", netErr },
			SaveCache:   func(ctx context.Context, v string) error { return nil },
		}

		results := collect(Execute(context.Background(), cachemgr.NetworkFirst, ops))
		if len(results) != 1 {
			t.Fatalf("emissions = %v, want 1", len(results))
		}
		if !errors.Is(results[0].Err, netErr) {
			t.Errorf("err = %v, want the network error", results[0].Err)
		}
	})
}

func TestExecute_CacheOnly(t *testing.T) {
	t.Run("never_touches_network", func(t *testing.T) {
		networkCalled := false
		ops := Ops[string]{
			ReadCache: func(ctx context.Context) (string, error) { return "stale", nil },
			CallNetwork: func(ctx context.Context) (string, error) {
				networkCalled = true
				return "fresh", nil
			},
			SaveCache: func(ctx context.Context, v string) error { return nil },
		}

		results := collect(Execute(context.Background(), cachemgr.CacheOnly, ops))
		if len(results) != 1 || results[0].Value != "stale" {
			t.Errorf("results = %+v, want single stale", results)
		}
		if networkCalled {
			t.Error("cache-only execution called the network")
		}
	})

	t.Run("miss_is_an_error", func(t *testing.T) {
		missErr := errors.New("no rows")
		ops := Ops[string]{
			ReadCache:   func(ctx context.Context) (string, error) { return "", missErr },
			CallNetwork: func(ctx context.Context) (string, error) { return "fresh", nil },
			SaveCache:   func(ctx context.Context, v string) error { return nil },
		}

		results := collect(Execute(context.Background(), cachemgr.CacheOnly, ops))
		if len(results) != 1 || !errors.Is(results[0].Err, missErr) {
			t.Errorf("results = %+v, want single cache error", results)
		}
	})
}

func TestExecute_NetworkOnly(t *testing.T) {
	t.Run("never_reads_cache_but_persists", func(t *testing.T) {
		cacheRead := false
		var saved string
		ops := Ops[string]{
			ReadCache: func(ctx context.Context) (string, error) {
				cacheRead = true
				return "stale", nil
			},
			CallNetwork: func(ctx context.Context) (string, error) { return "fresh", nil },
			SaveCache: func(ctx context.Context, v string) error {
				saved = v
				return nil
			},
		}

		results := collect(Execute(context.Background(), cachemgr.NetworkOnly, ops))
		if len(results) != 1 || results[0].Value != "fresh" {
			t.Errorf("results = %+v, want single fresh", results)
		}
		if cacheRead {
			t.Error("network-only execution read the cache")
		}
		if saved != "fresh" {
			t.Errorf("saved = %v, want fresh", saved)
		}
	})

	t.Run("network_failure_is_an_error", func(t *testing.T) {
		netErr := errors.New("offline")
		ops := Ops[string]{
			ReadCache:   func(ctx context.Context) (string, error) { return "stale", nil },
			CallNetwork: func(ctx context.Context) (string, error) { return "", netErr },
			SaveCache:   func(ctx context.Context, v string) error { return nil },
		}

		results := collect(Execute(context.Background(), cachemgr.NetworkOnly, ops))
		if len(results) != 1 || !errors.Is(results[0].Err, netErr) {
			t.Errorf("results = %+v, want single network error", results)
		}
	})
}

func TestExecute_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	ops := Ops[string]{
		ReadCache: func(ctx context.Context) (string, error) {
			<-block
			return "stale", nil
		},
		CallNetwork: func(ctx context.Context) (string, error) { return "fresh", nil },
		SaveCache:   func(ctx context.Context, v string) error { return nil },
	}

	ch := Execute(ctx, cachemgr.CacheOnly, ops)
	close(block)
	// The execution either emits into the buffered channel or observes the
	// cancelled context; the channel always closes.
	for range ch {
	}
}
