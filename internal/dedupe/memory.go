package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

// Memory is a single-instance deduper for dev runs and tests. Entries expire
// after ttl; an optional janitor goroutine sweeps expired ids so the map
// does not grow without bound on long replays.
type Memory struct {
	log logger.Logger
	ttl time.Duration

	mu      sync.RWMutex
	seenAt  map[string]int64 // id -> expiry, unix nano
	stopCh  chan struct{}
	stopped bool
}

// sweepEvery=0 disables the janitor.
func NewMemory(log logger.Logger, ttl, sweepEvery time.Duration) *Memory {
	m := &Memory{
		log:    log,
		ttl:    ttl,
		seenAt: make(map[string]int64, 1024),
		stopCh: make(chan struct{}),
	}

	if sweepEvery > 0 {
		go m.janitor(sweepEvery)
	}

	return m
}

func (m *Memory) IsDuplicate(_ context.Context, id string) (bool, error) {
	now := time.Now().UnixNano()

	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.seenAt[id]
	return ok && exp > now, nil
}

func (m *Memory) MarkSeen(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seenAt[id] = time.Now().UnixNano() + m.ttl.Nanoseconds()
	return nil
}

func (m *Memory) Health(_ context.Context) error {
	return nil
}

func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			now := time.Now().UnixNano()
			m.mu.Lock()
			for id, exp := range m.seenAt {
				if exp <= now {
					delete(m.seenAt, id)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the janitor if it is running. Safe to call twice.
func (m *Memory) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
