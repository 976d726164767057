package cacherepo

import (
	"context"

	"github.com/ekehi/ekehi-sync-server/cachemgr"
)

// Result is one emission of a strategy execution: either a value or the
// error that prevented one.
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) IsSuccess() bool {
	return r.Err == nil
}

func successResult[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func failureResult[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Ops are the three operations a strategy execution is parameterized by,
// plus a presence probe deciding whether a fetched value is worth
// persisting. ReadCache and SaveCache talk to the local store; CallNetwork
// talks to the remote source and must never panic across this boundary.
type Ops[T any] struct {
	ReadCache   func(ctx context.Context) (T, error)
	CallNetwork func(ctx context.Context) (T, error)
	SaveCache   func(ctx context.Context, value T) error

	// IsPresent reports whether a successful network value carries data.
	// A value that is not present is never written to the cache. When nil,
	// every successful value counts as present.
	IsPresent func(value T) bool
}

func (ops Ops[T]) present(v T) bool {
	if ops.IsPresent == nil {
		return true
	}
	return ops.IsPresent(v)
}

// Execute runs one of the four fetch algorithms and delivers its emissions
// on the returned channel. The channel is closed once the algorithm
// finishes; cancelling ctx stops the execution and releases the goroutine.
//
// Emission contract per strategy:
//
//	CacheFirst:   cached value first (a failed cache read is swallowed),
//	              then the fresh network value if the refresh succeeds.
//	              A failed refresh emits nothing further: the cache
//	              emission remains the latest known state.
//	NetworkFirst: fresh value on success, even when the payload is absent
//	              (absent payloads are emitted but never cached); otherwise
//	              the cached value, masking the network error. If the cache
//	              read also fails, the original network error is emitted.
//	CacheOnly:    exactly one emission, value or cache-read error.
//	NetworkOnly:  exactly one emission, value or network error. The cache
//	              is written on success, never read.
func Execute[T any](ctx context.Context, strategy cachemgr.Strategy, ops Ops[T]) <-chan Result[T] {
	out := make(chan Result[T], 2)
	go func() {
		defer close(out)
		switch strategy {
		case cachemgr.CacheFirst:
			cacheFirst(ctx, ops, out)
		case cachemgr.NetworkFirst:
			networkFirst(ctx, ops, out)
		case cachemgr.CacheOnly:
			cacheOnly(ctx, ops, out)
		case cachemgr.NetworkOnly:
			networkOnly(ctx, ops, out)
		default:
			log.Errorf("Unknown cache strategy %v, falling back to cache-first", strategy)
			cacheFirst(ctx, ops, out)
		}
	}()
	return out
}

func emit[T any](ctx context.Context, out chan<- Result[T], r Result[T]) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func cacheFirst[T any](ctx context.Context, ops Ops[T], out chan<- Result[T]) {
	cached, err := ops.ReadCache(ctx)
	if err == nil {
		if !emit(ctx, out, successResult(cached)) {
			return
		}
	}
	// A cache miss is not surfaced: the network refresh below is the next
	// chance to produce a value.

	fresh, err := ops.CallNetwork(ctx)
	if err != nil {
		// The cache emission, if any, stands as the latest known state.
		log.Debugf("Cache-first refresh failed, keeping cached state: %v", err)
		return
	}
	if !ops.present(fresh) {
		return
	}
	if err := ops.SaveCache(ctx, fresh); err != nil {
		log.Errorf("Unable to persist refreshed value: %v", err)
		return
	}
	emit(ctx, out, successResult(fresh))
}

func networkFirst[T any](ctx context.Context, ops Ops[T], out chan<- Result[T]) {
	fresh, netErr := ops.CallNetwork(ctx)
	if netErr == nil {
		if !ops.present(fresh) {
			// An absent payload is still the fresh answer. It is delivered
			// but never written to the cache.
			emit(ctx, out, successResult(fresh))
			return
		}
		if err := ops.SaveCache(ctx, fresh); err != nil {
			log.Errorf("Unable to persist fetched value: %v", err)
			emit(ctx, out, failureResult[T](err))
			return
		}
		emit(ctx, out, successResult(fresh))
		return
	}

	cached, cacheErr := ops.ReadCache(ctx)
	if cacheErr == nil {
		// The network error is masked: the caller sees the cached value.
		emit(ctx, out, successResult(cached))
		return
	}
	emit(ctx, out, failureResult[T](netErr))
}

func cacheOnly[T any](ctx context.Context, ops Ops[T], out chan<- Result[T]) {
	cached, err := ops.ReadCache(ctx)
	if err != nil {
		emit(ctx, out, failureResult[T](err))
		return
	}
	emit(ctx, out, successResult(cached))
}

func networkOnly[T any](ctx context.Context, ops Ops[T], out chan<- Result[T]) {
	fresh, err := ops.CallNetwork(ctx)
	if err != nil {
		emit(ctx, out, failureResult[T](err))
		return
	}
	if ops.present(fresh) {
		if err := ops.SaveCache(ctx, fresh); err != nil {
			emit(ctx, out, failureResult[T](err))
			return
		}
	}
	emit(ctx, out, successResult(fresh))
}
