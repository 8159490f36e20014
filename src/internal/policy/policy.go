// Package policy holds the pure limit checks consulted before a membership
// toggle is attempted. The checks are advisory: the store repeats them
// authoritatively at write time.
package policy

import (
	"fmt"

	"github.com/repo-radar/radar-service/src/internal/model"
)

// Denial says why a check-on is not allowed, or DenialNone when it is.
type Denial int

const (
	DenialNone Denial = iota
	DenialRadarFull
	DenialTotalFull
)

// Reason is the human-readable form shown next to a disabled checkbox. It is
// a UI affordance only.
func (d Denial) Reason() string {
	switch d {
	case DenialRadarFull:
		return fmt.Sprintf("this radar is full (%d repos max)", model.MaxReposPerRadar)
	case DenialTotalFull:
		return fmt.Sprintf("you are tracking the maximum of %d repos", model.MaxTotalRepos)
	default:
		return ""
	}
}

// CanUncheck reports whether a membership may be removed. Removing is never
// limited.
func CanUncheck(_ model.RadarWithCount) bool {
	return true
}

// Evaluate decides whether a membership may be added to radar, given every
// radar of the same owner and any staged-but-uncommitted changes. Pass a nil
// pending set in immediate mode, where counts reflect committed state only.
func Evaluate(radar model.RadarWithCount, allRadars []model.RadarWithCount, pending *model.PendingChanges) Denial {
	if radar.RepoCount+pending.Delta(radar.RadarID) >= model.MaxReposPerRadar {
		return DenialRadarFull
	}

	total := 0
	for _, rc := range allRadars {
		total += rc.RepoCount + pending.Delta(rc.RadarID)
	}
	if total >= model.MaxTotalRepos {
		return DenialTotalFull
	}

	return DenialNone
}

func CanCheck(radar model.RadarWithCount, allRadars []model.RadarWithCount, pending *model.PendingChanges) bool {
	return Evaluate(radar, allRadars, pending) == DenialNone
}

func CheckDisabledReason(radar model.RadarWithCount, allRadars []model.RadarWithCount, pending *model.PendingChanges) string {
	return Evaluate(radar, allRadars, pending).Reason()
}
