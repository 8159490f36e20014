package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/repo-radar/radar-service/src/internal/model"
	"github.com/repo-radar/radar-service/src/internal/policy"

	"go.uber.org/zap"
)

// BatchCoordinator buffers membership toggles for one repository against a
// server-known snapshot and submits only the net change on commit. Nothing
// touches the store until Commit.
type BatchCoordinator struct {
	mu  sync.Mutex
	svc MembershipService
	log *zap.Logger

	repoID   int64
	snapshot map[string]struct{}
	pending  *model.PendingChanges
}

func NewBatchCoordinator(svc MembershipService, logger *zap.Logger) *BatchCoordinator {
	return &BatchCoordinator{
		svc:      svc,
		log:      logger,
		snapshot: make(map[string]struct{}),
		pending:  model.NewPendingChanges(),
	}
}

// Open snapshots the server-known membership set for repoID and clears any
// previously staged changes. Called when the review surface opens.
func (b *BatchCoordinator) Open(ctx context.Context, repoID int64) error {
	radarIDs, err := b.svc.RadarsContaining(ctx, repoID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.repoID = repoID
	b.snapshot = make(map[string]struct{}, len(radarIDs))
	for _, id := range radarIDs {
		b.snapshot[id] = struct{}{}
	}
	b.pending = model.NewPendingChanges()

	b.log.Debug("BatchCoordinator.Open: snapshot taken", zap.Int64("repo", repoID), zap.Int("radars", len(radarIDs)))
	return nil
}

// Toggle flips the staged state of one radar. Toggling back to the original
// snapshot state clears the id from both sets, so a no-op is never submitted.
func (b *BatchCoordinator) Toggle(radarID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isCheckedLocked(radarID) {
		if _, staged := b.pending.ToAdd[radarID]; staged {
			delete(b.pending.ToAdd, radarID)
		} else {
			b.pending.ToRemove[radarID] = struct{}{}
		}
		return
	}

	if _, staged := b.pending.ToRemove[radarID]; staged {
		delete(b.pending.ToRemove, radarID)
	} else {
		b.pending.ToAdd[radarID] = struct{}{}
	}
}

// IsChecked is the effective staged state: ToAdd wins, then ToRemove, then
// the original snapshot.
func (b *BatchCoordinator) IsChecked(radarID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isCheckedLocked(radarID)
}

func (b *BatchCoordinator) isCheckedLocked(radarID string) bool {
	if _, ok := b.pending.ToAdd[radarID]; ok {
		return true
	}
	if _, ok := b.pending.ToRemove[radarID]; ok {
		return false
	}
	_, ok := b.snapshot[radarID]
	return ok
}

// Pending returns a copy of the staged sets for limit checks.
func (b *BatchCoordinator) Pending() *model.PendingChanges {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := model.NewPendingChanges()
	for id := range b.pending.ToAdd {
		p.ToAdd[id] = struct{}{}
	}
	for id := range b.pending.ToRemove {
		p.ToRemove[id] = struct{}{}
	}
	return p
}

// CheckDisabledReason runs the limit policy with the staged changes counted
// in, so the disabled state reflects what the user has staged but not saved.
func (b *BatchCoordinator) CheckDisabledReason(radar model.RadarWithCount, allRadars []model.RadarWithCount) string {
	return policy.CheckDisabledReason(radar, allRadars, b.Pending())
}

// ActualAdds is the net set of radars to add: staged adds that the snapshot
// does not already contain.
func (b *BatchCoordinator) ActualAdds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.actualAddsLocked()
}

func (b *BatchCoordinator) actualAddsLocked() []string {
	var adds []string
	for id := range b.pending.ToAdd {
		if _, ok := b.snapshot[id]; !ok {
			adds = append(adds, id)
		}
	}
	sort.Strings(adds)
	return adds
}

// ActualRemoves is the net set of radars to remove: staged removes that the
// snapshot contains.
func (b *BatchCoordinator) ActualRemoves() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.actualRemovesLocked()
}

func (b *BatchCoordinator) actualRemovesLocked() []string {
	var removes []string
	for id := range b.pending.ToRemove {
		if _, ok := b.snapshot[id]; ok {
			removes = append(removes, id)
		}
	}
	sort.Strings(removes)
	return removes
}

type opResult struct {
	radarID string
	add     bool
	err     error
}

// Commit submits the net change. All removals run concurrently, then all
// additions run concurrently; removals go first so moving a repo between
// radars cannot trip the total limit transiently. Each call's outcome is
// tracked on its own: successes are cleared from the pending sets and folded
// into the snapshot, failures stay staged for retry or discard. The first
// failure in submission order is returned; already-succeeded operations are
// not rolled back.
func (b *BatchCoordinator) Commit(ctx context.Context) error {
	b.mu.Lock()
	removes := b.actualRemovesLocked()
	adds := b.actualAddsLocked()
	repoID := b.repoID
	b.mu.Unlock()

	if len(removes) == 0 && len(adds) == 0 {
		return nil
	}

	var wg sync.WaitGroup

	removeResults := make([]opResult, len(removes))
	for i, id := range removes {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			err := b.svc.RemoveMembership(ctx, id, repoID)
			removeResults[i] = opResult{radarID: id, add: false, err: err}
		}(i, id)
	}
	wg.Wait()

	addResults := make([]opResult, len(adds))
	for i, id := range adds {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, err := b.svc.AddMembership(ctx, id, repoID)
			addResults[i] = opResult{radarID: id, add: true, err: err}
		}(i, id)
	}
	wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, res := range append(removeResults, addResults...) {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			b.log.Warn("BatchCoordinator.Commit: operation failed, kept pending",
				zap.String("radar", res.radarID), zap.Bool("add", res.add), zap.Error(res.err))
			continue
		}
		if res.add {
			delete(b.pending.ToAdd, res.radarID)
			b.snapshot[res.radarID] = struct{}{}
		} else {
			delete(b.pending.ToRemove, res.radarID)
			delete(b.snapshot, res.radarID)
		}
	}

	b.log.Info("BatchCoordinator.Commit: done",
		zap.Int64("repo", repoID),
		zap.Int("removes", len(removes)),
		zap.Int("adds", len(adds)),
		zap.Bool("partial_failure", firstErr != nil))
	return firstErr
}

// Discard drops all staged changes without any network call.
func (b *BatchCoordinator) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = model.NewPendingChanges()
}
