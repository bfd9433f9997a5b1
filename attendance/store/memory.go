// Package store provides EventStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	events map[key][]attendance.TapEvent
	nextID int
}

type key struct {
	StudentID attendance.StudentID
	Period    string
}

func NewMemory() *Memory {
	return &Memory{events: make(map[key][]attendance.TapEvent)}
}

// Append adds a single event, keeping the per-key slice in At order.
// Append-only.
func (m *Memory) Append(_ context.Context, ev attendance.TapEvent) (attendance.EventID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	ev.ID = attendance.EventID(fmt.Sprintf("ev-%d", m.nextID))
	ev.Period = attendance.NormalizePeriod(ev.Period)
	ev.At = ev.At.UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	k := key{StudentID: ev.StudentID, Period: ev.Period}
	evs := m.events[k]

	// Binary search for the insertion point: backdated cutoffs land
	// before later live taps.
	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].At.After(ev.At)
	})

	evs = append(evs, attendance.TapEvent{})
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	m.events[k] = evs

	return ev.ID, nil
}

func (m *Memory) Latest(_ context.Context, student attendance.StudentID, period string) (*attendance.TapEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	evs := m.events[key{StudentID: student, Period: attendance.NormalizePeriod(period)}]
	if len(evs) == 0 {
		return nil, nil
	}
	ev := evs[len(evs)-1]
	return &ev, nil
}

func (m *Memory) LatestAt(_ context.Context, student attendance.StudentID, period string, at time.Time) (*attendance.TapEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	evs := m.events[key{StudentID: student, Period: attendance.NormalizePeriod(period)}]
	for i := len(evs) - 1; i >= 0; i-- {
		if !evs[i].At.After(at) {
			ev := evs[i]
			return &ev, nil
		}
	}
	return nil, nil
}

func (m *Memory) Since(_ context.Context, student attendance.StudentID, period string, after *time.Time) ([]attendance.TapEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.TapEvent
	for _, ev := range m.events[key{StudentID: student, Period: attendance.NormalizePeriod(period)}] {
		if after == nil || ev.At.After(*after) {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (m *Memory) Window(_ context.Context, student attendance.StudentID, period string, from, to time.Time) ([]attendance.TapEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.TapEvent
	for _, ev := range m.events[key{StudentID: student, Period: attendance.NormalizePeriod(period)}] {
		if !ev.At.Before(from) && ev.At.Before(to) {
			result = append(result, ev)
		}
	}
	return result, nil
}

// PurgeStudent removes the student's entire history across all periods.
func (m *Memory) PurgeStudent(_ context.Context, student attendance.StudentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.events {
		if k.StudentID == student {
			delete(m.events, k)
		}
	}
	return nil
}
