package cachemgr

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Strategy governs the read-path precedence between the local store and the
// network for a single fetch.
type Strategy int

const (
	// CacheFirst emits the cached value immediately and refreshes from the
	// network in the background.
	CacheFirst Strategy = iota
	// NetworkFirst asks the network and falls back to the cache on failure.
	NetworkFirst
	// CacheOnly never touches the network.
	CacheOnly
	// NetworkOnly never reads the cache, but still persists fetched values.
	NetworkOnly
)

var strategyStrings = map[Strategy]string{
	CacheFirst:   "cache_first",
	NetworkFirst: "network_first",
	CacheOnly:    "cache_only",
	NetworkOnly:  "network_only",
}

func (s Strategy) String() string {
	if str, ok := strategyStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown strategy (%d)", int(s))
}

// ParseStrategy converts a config string into a Strategy.
func ParseStrategy(str string) (Strategy, error) {
	needle := strings.ToLower(strings.TrimSpace(str))
	for s, name := range strategyStrings {
		if name == needle {
			return s, nil
		}
	}
	return CacheFirst, fmt.Errorf("invalid cache strategy: %v", str)
}

// Manager holds the currently selected cache strategy. The strategy is fixed
// at construction and may be swapped atomically at runtime; reads are safe
// from any goroutine without locking.
type Manager struct {
	strategy atomic.Value
}

func NewManager(initial Strategy) *Manager {
	m := &Manager{}
	m.strategy.Store(initial)
	return m
}

// Strategy returns the currently configured strategy.
func (m *Manager) Strategy() Strategy {
	return m.strategy.Load().(Strategy)
}

// SetStrategy switches the configured strategy. Fetches already in flight
// keep the strategy they started with.
func (m *Manager) SetStrategy(s Strategy) {
	m.strategy.Store(s)
}
