package model

import "time"

// Hard capacity limits. The store re-checks these on every write; the
// policy package uses the same numbers for the advisory UI-side check.
const (
	MaxRadarsPerUser = 5
	MaxReposPerRadar = 25
	MaxTotalRepos    = 50

	MaxRadarNameLen = 50
)

type Radar struct {
	RadarID   string    `json:"radar_id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RadarWithCount is the read model: a radar plus its live membership count,
// derived from the membership rows at read time.
type RadarWithCount struct {
	Radar
	RepoCount int `json:"repo_count"`
}

type Membership struct {
	RadarID string    `json:"radar_id"`
	RepoID  int64     `json:"repo_id"`
	AddedAt time.Time `json:"added_at"`
}

// PendingChanges holds staged membership intents for one repository in
// review mode. A radar id is never present in both sets at once.
type PendingChanges struct {
	ToAdd    map[string]struct{}
	ToRemove map[string]struct{}
}

func NewPendingChanges() *PendingChanges {
	return &PendingChanges{
		ToAdd:    make(map[string]struct{}),
		ToRemove: make(map[string]struct{}),
	}
}

// Delta is the staged count change for one radar: +1 if an add is pending,
// -1 if a remove is pending, 0 otherwise. A nil receiver means immediate
// mode, where there is no staging buffer.
func (p *PendingChanges) Delta(radarID string) int {
	if p == nil {
		return 0
	}
	if _, ok := p.ToAdd[radarID]; ok {
		return 1
	}
	if _, ok := p.ToRemove[radarID]; ok {
		return -1
	}
	return 0
}

func (p *PendingChanges) Empty() bool {
	return p == nil || (len(p.ToAdd) == 0 && len(p.ToRemove) == 0)
}

type AppError string

func (e AppError) Error() string { return string(e) }

const (
	ErrNotFound   = AppError("NOT_FOUND")
	ErrDuplicate  = AppError("DUPLICATE_MEMBERSHIP")
	ErrRadarLimit = AppError("RADAR_LIMIT")
	ErrRepoLimit  = AppError("REPO_LIMIT")
	ErrTotalLimit = AppError("TOTAL_REPO_LIMIT")
)
