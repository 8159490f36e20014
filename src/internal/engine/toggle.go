// Package engine owns the client-facing membership state machine: the shared
// optimistic cache, the immediate-apply toggle path, and the review-then-save
// batch path. It sits between UI surfaces and the authoritative service.
package engine

import (
	"context"

	"github.com/repo-radar/radar-service/src/internal/api/apiErrors"
	"github.com/repo-radar/radar-service/src/internal/model"
	"github.com/repo-radar/radar-service/src/internal/policy"

	"go.uber.org/zap"
)

// MembershipService is the authoritative backend as seen by the engine.
// *service.Service satisfies it.
type MembershipService interface {
	ListRadars(ctx context.Context) ([]model.RadarWithCount, error)
	AddMembership(ctx context.Context, radarID string, repoID int64) (model.Membership, error)
	RemoveMembership(ctx context.Context, radarID string, repoID int64) error
	RadarsContaining(ctx context.Context, repoID int64) ([]string, error)
}

// ToggleController applies a single membership change optimistically to the
// shared cache, submits it, and reconciles or rolls back on the outcome.
type ToggleController struct {
	svc   MembershipService
	cache *Cache
	log   *zap.Logger
}

func NewToggleController(svc MembershipService, cache *Cache, logger *zap.Logger) *ToggleController {
	return &ToggleController{svc: svc, cache: cache, log: logger}
}

func (t *ToggleController) Cache() *Cache {
	return t.cache
}

// Refresh replaces cached radar counts with the server's.
func (t *ToggleController) Refresh(ctx context.Context) error {
	radars, err := t.svc.ListRadars(ctx)
	if err != nil {
		return err
	}
	t.cache.SetRadars(radars)
	return nil
}

// RefreshMembership pulls the server-known radar set for one repo into the
// cache.
func (t *ToggleController) RefreshMembership(ctx context.Context, repoID int64) error {
	radarIDs, err := t.svc.RadarsContaining(ctx, repoID)
	if err != nil {
		return err
	}
	t.cache.SetMembership(repoID, radarIDs)
	return nil
}

// Toggle flips membership of repoID on radarID. The direction is decided
// from the cache value read at call time, never from state captured earlier,
// so two rapid toggles cannot overwrite each other's effect. The optimistic
// apply happens before the store call; on failure the pre-toggle snapshot is
// restored exactly and the error returned for display.
func (t *ToggleController) Toggle(ctx context.Context, radarID string, repoID int64) error {
	snap, adding, denial, ok := t.cache.ApplyToggle(radarID, repoID)
	if !ok {
		switch denial {
		case policy.DenialRadarFull:
			t.log.Debug("Toggle: radar full", zap.String("radar", radarID))
			return apiErrors.APIError{Code: apiErrors.RepoLimitExceeded, Message: denial.Reason(), Limit: model.MaxReposPerRadar}
		case policy.DenialTotalFull:
			t.log.Debug("Toggle: total limit reached", zap.String("radar", radarID))
			return apiErrors.APIError{Code: apiErrors.TotalLimitExceeded, Message: denial.Reason(), Limit: model.MaxTotalRepos}
		}
		t.log.Debug("Toggle: unknown radar", zap.String("radar", radarID))
		return apiErrors.APIError{Code: apiErrors.NotFound, Message: "radar not found"}
	}

	var err error
	if adding {
		_, err = t.svc.AddMembership(ctx, radarID, repoID)
	} else {
		err = t.svc.RemoveMembership(ctx, radarID, repoID)
	}
	if err != nil {
		t.cache.Restore(snap)
		t.log.Warn("Toggle: store call failed, cache reverted",
			zap.String("radar", radarID), zap.Int64("repo", repoID), zap.Bool("adding", adding), zap.Error(err))
		return err
	}

	// Replace the optimistic counts with server-computed ones without
	// blocking the caller. The refresh outlives the triggering surface, so
	// it must not die with the request context.
	rctx := context.WithoutCancel(ctx)
	go func() {
		if err := t.Refresh(rctx); err != nil {
			t.log.Warn("Toggle: background refresh failed", zap.Error(err))
		}
	}()

	t.log.Debug("Toggle: success", zap.String("radar", radarID), zap.Int64("repo", repoID), zap.Bool("adding", adding))
	return nil
}
