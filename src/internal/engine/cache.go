package engine

import (
	"sync"

	"github.com/repo-radar/radar-service/src/internal/model"
	"github.com/repo-radar/radar-service/src/internal/policy"
)

// Source tags a cache entry as authoritative server state or a provisional
// local approximation awaiting confirmation.
type Source int

const (
	SourceServer Source = iota
	SourceOptimistic
)

type entry struct {
	radar  model.RadarWithCount
	repos  map[int64]struct{}
	source Source
}

func (e *entry) clone() *entry {
	repos := make(map[int64]struct{}, len(e.repos))
	for id := range e.repos {
		repos[id] = struct{}{}
	}
	return &entry{radar: e.radar, repos: repos, source: e.source}
}

// Snapshot is the exact pre-toggle state of one entry, used to revert a
// failed optimistic apply without recomputation.
type Snapshot struct {
	radarID string
	entry   *entry
}

// Cache is the single shared membership view consumed by every UI surface.
// All compound mutations (membership set plus derived count) happen inside
// one critical section so no reader observes a torn intermediate state.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// SetRadars replaces the radar list and counts with server-known values.
// Membership sets learned earlier are kept for radars that still exist.
func (c *Cache) SetRadars(radars []model.RadarWithCount) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make(map[string]*entry, len(radars))
	order := make([]string, 0, len(radars))
	for _, rc := range radars {
		e := &entry{radar: rc, repos: make(map[int64]struct{}), source: SourceServer}
		if prev, ok := c.entries[rc.RadarID]; ok {
			e.repos = prev.repos
		}
		entries[rc.RadarID] = e
		order = append(order, rc.RadarID)
	}
	c.entries = entries
	c.order = order
}

// SetMembership records the server-known set of radars containing repoID.
func (c *Cache) SetMembership(repoID int64, radarIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	containing := make(map[string]struct{}, len(radarIDs))
	for _, id := range radarIDs {
		containing[id] = struct{}{}
	}
	for id, e := range c.entries {
		if _, ok := containing[id]; ok {
			e.repos[repoID] = struct{}{}
		} else {
			delete(e.repos, repoID)
		}
	}
}

func (c *Cache) List() []model.RadarWithCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listLocked()
}

func (c *Cache) listLocked() []model.RadarWithCount {
	radars := make([]model.RadarWithCount, 0, len(c.order))
	for _, id := range c.order {
		radars = append(radars, c.entries[id].radar)
	}
	return radars
}

func (c *Cache) IsMember(radarID string, repoID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[radarID]
	if !ok {
		return false
	}
	_, member := e.repos[repoID]
	return member
}

// Entry returns a copy of one radar's cached read model and its source tag.
func (c *Cache) Entry(radarID string) (model.RadarWithCount, Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[radarID]
	if !ok {
		return model.RadarWithCount{}, SourceServer, false
	}
	return e.radar, e.source, true
}

// ApplyToggle reads the live membership state for (radarID, repoID) and flips
// it optimistically: the membership set and the derived count change together
// under the lock, and the entry is tagged optimistic. The returned snapshot
// restores exactly the pre-toggle entry on failure. A denial other than
// DenialNone means the policy forbade a check-on and nothing was mutated.
func (c *Cache) ApplyToggle(radarID string, repoID int64) (snap Snapshot, adding bool, denial policy.Denial, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[radarID]
	if !found {
		return Snapshot{}, false, policy.DenialNone, false
	}

	_, member := e.repos[repoID]
	adding = !member

	if adding {
		if d := policy.Evaluate(e.radar, c.listLocked(), nil); d != policy.DenialNone {
			return Snapshot{}, true, d, false
		}
	}

	snap = Snapshot{radarID: radarID, entry: e.clone()}

	if adding {
		e.repos[repoID] = struct{}{}
		e.radar.RepoCount++
	} else {
		delete(e.repos, repoID)
		e.radar.RepoCount--
	}
	e.source = SourceOptimistic

	return snap, adding, policy.DenialNone, true
}

// Restore puts back the exact entry captured before a failed toggle. A radar
// that vanished from the cache in the meantime stays gone.
func (c *Cache) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.entry == nil {
		return
	}
	if _, ok := c.entries[snap.radarID]; !ok {
		return
	}
	c.entries[snap.radarID] = snap.entry
}
