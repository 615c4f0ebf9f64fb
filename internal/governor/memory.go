package governor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Ledger = (*MemoryLedger)(nil)

// sweepEvery is how many admissions pass between sweeps of idle keys.
const sweepEvery = 1024

type entry struct {
	mu      sync.Mutex
	log     []time.Time // admission times, ascending
	expires time.Time   // when the newest admission leaves the longest window
	dead    bool        // removed from the map by a sweep
}

// MemoryLedger is an in-process sliding-window log. It is safe for concurrent
// use; the map lock is held only for lookup so distinct keys never contend.
// Counters are lost on process restart.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*entry
	admits  int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]*entry),
	}
}

func (m *MemoryLedger) entry(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	return e
}

func (m *MemoryLedger) Admit(_ context.Context, key string, windows []Window, now time.Time) (Decision, error) {
	m.maybeSweep(now)

	var e *entry
	for {
		e = m.entry(key)
		e.mu.Lock()
		if !e.dead {
			break
		}
		e.mu.Unlock()
	}
	defer e.mu.Unlock()

	e.prune(now.Add(-longest(windows)))

	var retry time.Duration
	for _, w := range windows {
		if w.Capacity <= 0 {
			continue
		}
		if e.count(now.Add(-w.Period)) < w.Capacity {
			continue
		}
		// the window frees a slot once the capacity-th newest admission leaves it
		wait := e.log[len(e.log)-w.Capacity].Add(w.Period).Sub(now)
		if retry == 0 || wait < retry {
			retry = wait
		}
	}
	if retry > 0 {
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	e.insert(now)
	if exp := now.Add(longest(windows)); exp.After(e.expires) {
		e.expires = exp
	}
	return Decision{Allowed: true}, nil
}

// maybeSweep drops keys with nothing left in any window. Entries busy in
// another Admit are skipped and picked up by a later sweep.
func (m *MemoryLedger) maybeSweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.admits++
	if m.admits%sweepEvery != 0 {
		return
	}
	for key, e := range m.entries {
		if !e.mu.TryLock() {
			continue
		}
		if !e.expires.After(now) {
			e.dead = true
			delete(m.entries, key)
		}
		e.mu.Unlock()
	}
}

// count returns the number of admissions strictly after since.
func (e *entry) count(since time.Time) int {
	i := sort.Search(len(e.log), func(i int) bool { return e.log[i].After(since) })
	return len(e.log) - i
}

func (e *entry) prune(cutoff time.Time) {
	i := sort.Search(len(e.log), func(i int) bool { return e.log[i].After(cutoff) })
	if i > 0 {
		e.log = append(e.log[:0], e.log[i:]...)
	}
}

func (e *entry) insert(t time.Time) {
	i := sort.Search(len(e.log), func(i int) bool { return e.log[i].After(t) })
	e.log = append(e.log, time.Time{})
	copy(e.log[i+1:], e.log[i:])
	e.log[i] = t
}

// Len reports the number of tracked keys.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close is a no-op for the in-memory ledger.
func (m *MemoryLedger) Close() error {
	return nil
}
