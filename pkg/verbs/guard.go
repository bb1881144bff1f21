package verbs

import (
	"sort"
	"sync"
)

// guardTable holds one serialization guard per location id. Guards are
// created lazily on first use and never torn down; the table is bounded by
// the set of rooms in the world.
type guardTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newGuardTable() *guardTable {
	return &guardTable{locks: make(map[string]*sync.Mutex)}
}

func (g *guardTable) guard(id string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.locks[id]
	if !ok {
		m = &sync.Mutex{}
		g.locks[id] = m
	}
	return m
}

// acquire locks the guards for the given location ids, deduplicated and in
// sorted order so a verb spanning two locations cannot deadlock against one
// spanning the same pair the other way round. The returned func releases
// them in reverse order.
func (g *guardTable) acquire(ids ...string) (release func()) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		m := g.guard(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
