// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	logs      map[logKey]*attendance.Log
	schedules map[string]*attendance.Schedule
}

type logKey struct {
	UserID  string
	LogDate string
}

func NewMemory() *Memory {
	return &Memory{
		logs:      make(map[logKey]*attendance.Log),
		schedules: make(map[string]*attendance.Schedule),
	}
}

func (m *Memory) ReadLog(_ context.Context, userID, date string) (*attendance.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.logs[logKey{UserID: userID, LogDate: date}]
	if !ok {
		return nil, attendance.ErrLogNotFound
	}
	return l.Clone(), nil
}

func (m *Memory) UpsertLog(_ context.Context, log *attendance.Log) (*attendance.Log, error) {
	if err := log.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Stored copy is private to the map; callers get their own clone back.
	m.logs[logKey{UserID: log.UserID, LogDate: log.LogDate}] = log.Clone()
	return log.Clone(), nil
}

func (m *Memory) ReadSchedule(_ context.Context, userID string) (*attendance.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[userID]
	if !ok {
		return nil, attendance.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) WriteSchedule(_ context.Context, cfg *attendance.Schedule) (*attendance.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *cfg
	m.schedules[cfg.UserID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) ListLogs(_ context.Context, filter attendance.ListFilter) ([]*attendance.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*attendance.Log
	for _, l := range m.logs {
		if filter.Matches(l) {
			result = append(result, l.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UserID != result[j].UserID {
			return result[i].UserID < result[j].UserID
		}
		return result[i].LogDate < result[j].LogDate
	})
	return result, nil
}
