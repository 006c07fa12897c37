// accolade/pkg/ledger/memory.go

package ledger

import (
	"context"
	"sync"
)

// Memory is a process-local Ledger.
type Memory struct {
	mu      sync.RWMutex
	badges  map[string]Badge
	awards  map[string]map[string]Award
	optOuts map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		badges:  make(map[string]Badge),
		awards:  make(map[string]map[string]Award),
		optOuts: make(map[string]bool),
	}
}

func (m *Memory) AddBadge(_ context.Context, b Badge) (string, error) {
	if b.ID == "" {
		b.ID = BadgeID(b.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.badges[b.ID]; !ok {
		m.badges[b.ID] = b
	}
	return b.ID, nil
}

func (m *Memory) AwardExists(_ context.Context, badgeID, identity string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.awards[badgeID][identity]
	return ok, nil
}

func (m *Memory) OptedOut(_ context.Context, identity string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.optOuts[identity], nil
}

func (m *Memory) SetOptOut(_ context.Context, identity string, optOut bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optOuts[identity] = optOut
	return nil
}

func (m *Memory) RegisterAward(_ context.Context, a Award) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	holders, ok := m.awards[a.BadgeID]
	if !ok {
		holders = make(map[string]Award)
		m.awards[a.BadgeID] = holders
	}
	if _, exists := holders[a.Identity]; exists {
		return false, nil
	}
	holders[a.Identity] = a
	return true, nil
}

// Awards returns the identities holding a badge.
func (m *Memory) Awards(badgeID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.awards[badgeID]))
	for identity := range m.awards[badgeID] {
		out = append(out, identity)
	}
	return out
}
