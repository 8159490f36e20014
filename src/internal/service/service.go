package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/repo-radar/radar-service/src/internal/api/apiErrors"
	"github.com/repo-radar/radar-service/src/internal/model"
	"github.com/repo-radar/radar-service/src/internal/store"

	"go.uber.org/zap"
)

// IdentityProvider supplies the id of the currently authenticated user.
// Session handling lives outside this module; the service only needs the id.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

type Service struct {
	repo store.Repository
	ids  IdentityProvider
	log  *zap.Logger
}

func NewService(repos store.Repository, ids IdentityProvider, logger *zap.Logger) *Service {
	return &Service{
		repo: repos,
		ids:  ids,
		log:  logger,
	}
}

func (s *Service) currentUser(ctx context.Context) (string, error) {
	id, err := s.ids.CurrentUserID(ctx)
	if err != nil || id == "" {
		return "", apiErrors.APIError{Code: apiErrors.AuthRequired, Message: "no authenticated user"}
	}
	return id, nil
}

func normalizeRadarName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apiErrors.APIError{Code: apiErrors.ValidationError, Message: "radar name must not be empty"}
	}
	if len([]rune(name)) > model.MaxRadarNameLen {
		return "", apiErrors.APIError{
			Code:    apiErrors.ValidationError,
			Message: fmt.Sprintf("radar name must be at most %d characters", model.MaxRadarNameLen),
		}
	}
	return name, nil
}

func (s *Service) ListRadars(ctx context.Context) ([]model.RadarWithCount, error) {
	ownerID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRadars(ctx, ownerID)
}

func (s *Service) CreateRadar(ctx context.Context, name string) (model.Radar, error) {
	ownerID, err := s.currentUser(ctx)
	if err != nil {
		return model.Radar{}, err
	}

	name, err = normalizeRadarName(name)
	if err != nil {
		return model.Radar{}, err
	}

	radar, err := s.repo.CreateRadar(ctx, ownerID, name)
	if err != nil {
		if errors.Is(err, model.ErrRadarLimit) {
			return model.Radar{}, apiErrors.APIError{
				Code:    apiErrors.RadarLimitExceeded,
				Message: fmt.Sprintf("you can have at most %d radars", model.MaxRadarsPerUser),
				Limit:   model.MaxRadarsPerUser,
			}
		}
		return model.Radar{}, err
	}
	return radar, nil
}

func (s *Service) RenameRadar(ctx context.Context, radarID, name string) (model.Radar, error) {
	if _, err := s.currentUser(ctx); err != nil {
		return model.Radar{}, err
	}

	name, err := normalizeRadarName(name)
	if err != nil {
		return model.Radar{}, err
	}

	radar, err := s.repo.RenameRadar(ctx, radarID, name)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Radar{}, apiErrors.APIError{Code: apiErrors.NotFound, Message: "radar not found"}
		}
		return model.Radar{}, err
	}
	return radar, nil
}

func (s *Service) DeleteRadar(ctx context.Context, radarID string) error {
	if _, err := s.currentUser(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteRadar(ctx, radarID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return apiErrors.APIError{Code: apiErrors.NotFound, Message: "radar not found"}
		}
		return err
	}
	return nil
}

func (s *Service) AddMembership(ctx context.Context, radarID string, repoID int64) (model.Membership, error) {
	if _, err := s.currentUser(ctx); err != nil {
		return model.Membership{}, err
	}

	m, err := s.repo.AddMembership(ctx, radarID, repoID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRepoLimit):
			return model.Membership{}, apiErrors.APIError{
				Code:    apiErrors.RepoLimitExceeded,
				Message: fmt.Sprintf("a radar can hold at most %d repos", model.MaxReposPerRadar),
				Limit:   model.MaxReposPerRadar,
			}
		case errors.Is(err, model.ErrTotalLimit):
			return model.Membership{}, apiErrors.APIError{
				Code:    apiErrors.TotalLimitExceeded,
				Message: fmt.Sprintf("you can track at most %d repos across all radars", model.MaxTotalRepos),
				Limit:   model.MaxTotalRepos,
			}
		case errors.Is(err, model.ErrDuplicate):
			return model.Membership{}, apiErrors.APIError{Code: apiErrors.DuplicateMembership, Message: "repo is already on this radar"}
		case errors.Is(err, model.ErrNotFound):
			return model.Membership{}, apiErrors.APIError{Code: apiErrors.NotFound, Message: "radar not found"}
		}
		return model.Membership{}, err
	}
	return m, nil
}

func (s *Service) RemoveMembership(ctx context.Context, radarID string, repoID int64) error {
	if _, err := s.currentUser(ctx); err != nil {
		return err
	}
	return s.repo.RemoveMembership(ctx, radarID, repoID)
}

func (s *Service) RadarsContaining(ctx context.Context, repoID int64) ([]string, error) {
	ownerID, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.RadarsContaining(ctx, ownerID, repoID)
}
