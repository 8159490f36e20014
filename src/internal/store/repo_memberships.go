package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/repo-radar/radar-service/src/internal/model"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type MembershipRepo struct {
	db  *sql.DB
	log *zap.Logger
}

func NewMembershipRepo(db *sql.DB, logger *zap.Logger) *MembershipRepo {
	return &MembershipRepo{db: db, log: logger}
}

func (r *Repositories) AddMembership(ctx context.Context, radarID string, repoID int64) (model.Membership, error) {
	r.Log.Debug("AddMembership: start", zap.String("radar", radarID), zap.Int64("repo", repoID))

	tx, err := r.BeginTx(ctx)
	if err != nil {
		r.Log.Error("AddMembership: begin tx failed", zap.Error(err))
		return model.Membership{}, err
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.Log.Warn("AddMembership: rollback failed", zap.Error(err))
		}
	}()

	var ownerID string
	if err := tx.QueryRowContext(ctx, `SELECT owner_id FROM radars WHERE radar_id=$1`, radarID).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Debug("AddMembership: radar not found", zap.String("radar", radarID))
			return model.Membership{}, model.ErrNotFound
		}
		r.Log.Error("AddMembership: fetch owner failed", zap.Error(err))
		return model.Membership{}, err
	}

	// Soft limits: count then insert, same accepted race window as
	// CreateRadar. Two concurrent adds can both pass and overshoot by one.
	var radarCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM radar_repos WHERE radar_id=$1`, radarID).Scan(&radarCount); err != nil {
		r.Log.Error("AddMembership: count radar repos failed", zap.Error(err))
		return model.Membership{}, err
	}
	if radarCount >= model.MaxReposPerRadar {
		r.Log.Debug("AddMembership: radar full", zap.String("radar", radarID), zap.Int("count", radarCount))
		return model.Membership{}, model.ErrRepoLimit
	}

	var totalCount int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM radar_repos m
		JOIN radars r ON r.radar_id = m.radar_id
		WHERE r.owner_id = $1`, ownerID).Scan(&totalCount); err != nil {
		r.Log.Error("AddMembership: count total repos failed", zap.Error(err))
		return model.Membership{}, err
	}
	if totalCount >= model.MaxTotalRepos {
		r.Log.Debug("AddMembership: total limit reached", zap.String("owner", ownerID), zap.Int("count", totalCount))
		return model.Membership{}, model.ErrTotalLimit
	}

	m := model.Membership{
		RadarID: radarID,
		RepoID:  repoID,
		AddedAt: time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO radar_repos(radar_id, repo_id, added_at) VALUES($1,$2,$3)`,
		m.RadarID, m.RepoID, m.AddedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch string(pqErr.Code) {
			case pqUniqueViolation:
				r.Log.Debug("AddMembership: already a member", zap.String("radar", radarID), zap.Int64("repo", repoID))
				return model.Membership{}, model.ErrDuplicate
			case pqForeignKeyViolation:
				r.Log.Debug("AddMembership: radar deleted concurrently", zap.String("radar", radarID))
				return model.Membership{}, model.ErrNotFound
			}
		}
		r.Log.Error("AddMembership: insert failed", zap.Error(err))
		return model.Membership{}, err
	}

	if err := tx.Commit(); err != nil {
		r.Log.Error("AddMembership: commit failed", zap.Error(err))
		return model.Membership{}, err
	}

	r.Log.Info("AddMembership: success", zap.String("radar", radarID), zap.Int64("repo", repoID))
	return m, nil
}

func (r *Repositories) RemoveMembership(ctx context.Context, radarID string, repoID int64) error {
	r.Log.Debug("RemoveMembership: start", zap.String("radar", radarID), zap.Int64("repo", repoID))

	// Idempotent: deleting a non-member is a no-op.
	res, err := r.DB.ExecContext(ctx, `DELETE FROM radar_repos WHERE radar_id=$1 AND repo_id=$2`, radarID, repoID)
	if err != nil {
		r.Log.Error("RemoveMembership: delete failed", zap.Error(err))
		return err
	}
	n, _ := res.RowsAffected()

	r.Log.Info("RemoveMembership: success", zap.String("radar", radarID), zap.Int64("repo", repoID), zap.Int64("deleted", n))
	return nil
}

func (r *Repositories) RadarsContaining(ctx context.Context, ownerID string, repoID int64) ([]string, error) {
	r.Log.Debug("RadarsContaining: start", zap.String("owner", ownerID), zap.Int64("repo", repoID))

	rows, err := r.Memberships.db.QueryContext(ctx, `
		SELECT m.radar_id
		FROM radar_repos m
		JOIN radars r ON r.radar_id = m.radar_id
		WHERE r.owner_id = $1 AND m.repo_id = $2
		ORDER BY r.created_at ASC`, ownerID, repoID)
	if err != nil {
		r.Log.Error("RadarsContaining: query failed", zap.Error(err))
		return nil, err
	}

	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			r.Log.Error("RadarsContaining: close rows failed", zap.Error(err))
		}
	}(rows)

	var radarIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			r.Log.Error("RadarsContaining: scan failed", zap.Error(err))
			return nil, err
		}
		radarIDs = append(radarIDs, id)
	}

	if err := rows.Err(); err != nil {
		r.Log.Error("RadarsContaining: rows error", zap.Error(err))
		return nil, err
	}

	r.Log.Debug("RadarsContaining: success", zap.Int64("repo", repoID), zap.Int("radars", len(radarIDs)))
	return radarIDs, nil
}
