package archive

import (
	"context"
	"sort"
	"sync"
)

// memrepo keeps the archive in process; used when DATABASE_URL is unset.
type memrepo struct {
	mu    sync.RWMutex
	games map[string]*FinishedGame
}

func NewMemoryRepository() Repository {
	return &memrepo{games: make(map[string]*FinishedGame)}
}

func (m *memrepo) SaveGame(_ context.Context, g *FinishedGame) error {
	if g == nil {
		return nil
	}
	m.mu.Lock()
	m.games[g.ID] = clone(g)
	m.mu.Unlock()
	return nil
}

func (m *memrepo) GetGame(_ context.Context, id string) (*FinishedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(g), nil
}

func (m *memrepo) RecentGames(_ context.Context, limit int) ([]*FinishedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	items := make([]*FinishedGame, 0, len(m.games))
	for _, g := range m.games {
		items = append(items, clone(g))
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func clone(g *FinishedGame) *FinishedGame {
	c := *g
	c.Moves = append([]string(nil), g.Moves...)
	c.SAN = append([]string(nil), g.SAN...)
	return &c
}
