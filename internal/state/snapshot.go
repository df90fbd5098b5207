package state

import (
	"time"

	"github.com/five82/fiscal/internal/api"
	"github.com/five82/fiscal/internal/session"
)

// Freshness describes where the data on one axis came from.
type Freshness int

const (
	// Unknown means no fetch has settled yet. Soft-hydrated data is Unknown.
	Unknown Freshness = iota
	// Live means the last fetch succeeded.
	Live
	// StaleOffline means the last fetch failed and cached data is shown.
	StaleOffline
)

func (f Freshness) String() string {
	switch f {
	case Live:
		return "live"
	case StaleOffline:
		return "stale-offline"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the provider state.
type Snapshot struct {
	Identity        *session.Identity
	UserData        []api.User
	Targets         []api.Target
	Filters         api.Filters
	Loading         bool
	IsOffline       bool
	UserFreshness   Freshness
	TargetFreshness Freshness
	LastError       error
	LastUpdated     time.Time
}

// StatusCounts tallies targets per canonical status. Unknown statuses are
// counted under their own normalized value.
func (s Snapshot) StatusCounts() map[api.Status]int {
	counts := make(map[api.Status]int, len(api.Statuses))
	for _, st := range api.Statuses {
		counts[st] = 0
	}
	for _, t := range s.Targets {
		counts[t.NormalizedStatus()]++
	}
	return counts
}

// Unassigned returns targets without a team.
func (s Snapshot) Unassigned() []api.Target {
	var out []api.Target
	for _, t := range s.Targets {
		if !t.Assigned() {
			out = append(out, t)
		}
	}
	return out
}

func (s Snapshot) clone() Snapshot {
	dup := s
	dup.UserData = cloneSlice(s.UserData)
	dup.Targets = cloneSlice(s.Targets)
	if s.Identity != nil {
		id := *s.Identity
		id.Roles = cloneSlice(s.Identity.Roles)
		dup.Identity = &id
	}
	return dup
}

func cloneSlice[T any](items []T) []T {
	if items == nil {
		return nil
	}
	dup := make([]T, len(items))
	copy(dup, items)
	return dup
}
