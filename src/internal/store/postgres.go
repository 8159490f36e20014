package store

import (
	"context"
	"database/sql"

	"github.com/repo-radar/radar-service/src/internal/model"

	"go.uber.org/zap"
)

type Repository interface {
	ListRadars(ctx context.Context, ownerID string) ([]model.RadarWithCount, error)
	CreateRadar(ctx context.Context, ownerID, name string) (model.Radar, error)
	RenameRadar(ctx context.Context, radarID, name string) (model.Radar, error)
	DeleteRadar(ctx context.Context, radarID string) error
	AddMembership(ctx context.Context, radarID string, repoID int64) (model.Membership, error)
	RemoveMembership(ctx context.Context, radarID string, repoID int64) error
	RadarsContaining(ctx context.Context, ownerID string, repoID int64) ([]string, error)
}

type Repositories struct {
	DB          *sql.DB
	Log         *zap.Logger
	Radars      *RadarRepo
	Memberships *MembershipRepo
}

func NewRepositories(db *sql.DB, logger *zap.Logger) *Repositories {
	radarRepo := NewRadarRepo(db, logger)
	membershipRepo := NewMembershipRepo(db, logger)

	return &Repositories{
		DB:          db,
		Log:         logger,
		Radars:      radarRepo,
		Memberships: membershipRepo,
	}
}

func (r *Repositories) BeginTx(ctx context.Context) (*sql.Tx, error) {
	r.Log.Debug("BeginTx called")
	return r.DB.BeginTx(ctx, &sql.TxOptions{})
}
