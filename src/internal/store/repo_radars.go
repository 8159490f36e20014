package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/repo-radar/radar-service/src/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RadarRepo struct {
	db  *sql.DB
	log *zap.Logger
}

func NewRadarRepo(db *sql.DB, logger *zap.Logger) *RadarRepo {
	return &RadarRepo{db: db, log: logger}
}

func (r *Repositories) ListRadars(ctx context.Context, ownerID string) ([]model.RadarWithCount, error) {
	r.Log.Debug("ListRadars: start", zap.String("owner", ownerID))

	rows, err := r.Radars.db.QueryContext(ctx, `
		SELECT r.radar_id, r.owner_id, r.name, r.created_at, r.updated_at, COUNT(m.repo_id)
		FROM radars r
		LEFT JOIN radar_repos m ON m.radar_id = r.radar_id
		WHERE r.owner_id = $1
		GROUP BY r.radar_id
		ORDER BY r.created_at ASC`, ownerID)
	if err != nil {
		r.Log.Error("ListRadars: query failed", zap.Error(err))
		return nil, err
	}

	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			r.Log.Error("ListRadars: close rows failed", zap.Error(err))
		}
	}(rows)

	var radars []model.RadarWithCount
	for rows.Next() {
		var rc model.RadarWithCount
		if err := rows.Scan(&rc.RadarID, &rc.OwnerID, &rc.Name, &rc.CreatedAt, &rc.UpdatedAt, &rc.RepoCount); err != nil {
			r.Log.Error("ListRadars: scan failed", zap.Error(err))
			return nil, err
		}
		radars = append(radars, rc)
	}

	if err := rows.Err(); err != nil {
		r.Log.Error("ListRadars: rows error", zap.Error(err))
		return nil, err
	}

	r.Log.Debug("ListRadars: success", zap.String("owner", ownerID), zap.Int("radars", len(radars)))
	return radars, nil
}

func (r *Repositories) CreateRadar(ctx context.Context, ownerID, name string) (model.Radar, error) {
	r.Log.Debug("CreateRadar: start", zap.String("owner", ownerID), zap.String("name", name))

	tx, err := r.BeginTx(ctx)
	if err != nil {
		r.Log.Error("CreateRadar: begin tx failed", zap.Error(err))
		return model.Radar{}, err
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.Log.Warn("CreateRadar: rollback failed", zap.Error(err))
		}
	}()

	// Soft limit: count then insert. Two racing creates can both pass the
	// check and overshoot by one; accepted for a UX-level quota.
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM radars WHERE owner_id=$1`, ownerID).Scan(&count); err != nil {
		r.Log.Error("CreateRadar: count radars failed", zap.Error(err))
		return model.Radar{}, err
	}
	if count >= model.MaxRadarsPerUser {
		r.Log.Debug("CreateRadar: radar limit reached", zap.String("owner", ownerID), zap.Int("count", count))
		return model.Radar{}, model.ErrRadarLimit
	}

	radar := model.Radar{
		RadarID:   uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO radars(radar_id, owner_id, name, created_at, updated_at) VALUES($1,$2,$3,$4,$5)`,
		radar.RadarID, radar.OwnerID, radar.Name, radar.CreatedAt, radar.UpdatedAt); err != nil {
		r.Log.Error("CreateRadar: insert failed", zap.Error(err))
		return model.Radar{}, err
	}

	if err := tx.Commit(); err != nil {
		r.Log.Error("CreateRadar: commit failed", zap.Error(err))
		return model.Radar{}, err
	}

	r.Log.Info("CreateRadar: success", zap.String("owner", ownerID), zap.String("radar", radar.RadarID))
	return radar, nil
}

func (r *Repositories) RenameRadar(ctx context.Context, radarID, name string) (model.Radar, error) {
	r.Log.Debug("RenameRadar: start", zap.String("radar", radarID), zap.String("name", name))

	res, err := r.DB.ExecContext(ctx, `UPDATE radars SET name=$2, updated_at=now() WHERE radar_id=$1`, radarID, name)
	if err != nil {
		r.Log.Error("RenameRadar: update failed", zap.Error(err))
		return model.Radar{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		r.Log.Debug("RenameRadar: not found", zap.String("radar", radarID))
		return model.Radar{}, model.ErrNotFound
	}

	var radar model.Radar
	if err := r.DB.QueryRowContext(ctx, `SELECT radar_id, owner_id, name, created_at, updated_at FROM radars WHERE radar_id=$1`, radarID).
		Scan(&radar.RadarID, &radar.OwnerID, &radar.Name, &radar.CreatedAt, &radar.UpdatedAt); err != nil {
		r.Log.Error("RenameRadar: fetch radar failed", zap.Error(err))
		return model.Radar{}, err
	}

	r.Log.Info("RenameRadar: success", zap.String("radar", radarID), zap.String("name", radar.Name))
	return radar, nil
}

func (r *Repositories) DeleteRadar(ctx context.Context, radarID string) error {
	r.Log.Debug("DeleteRadar: start", zap.String("radar", radarID))

	// Membership rows go with the radar via ON DELETE CASCADE.
	res, err := r.DB.ExecContext(ctx, `DELETE FROM radars WHERE radar_id=$1`, radarID)
	if err != nil {
		r.Log.Error("DeleteRadar: delete failed", zap.Error(err))
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		r.Log.Debug("DeleteRadar: not found", zap.String("radar", radarID))
		return model.ErrNotFound
	}

	r.Log.Info("DeleteRadar: success", zap.String("radar", radarID))
	return nil
}
