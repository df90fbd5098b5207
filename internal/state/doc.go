// Package state holds the synchronized view of the logged-in user and the
// filtered target list shared by the TUI and the CLI.
//
// # Overview
//
// A Provider is constructed once per session. It tries the remote API first
// on every fetch, writes successful responses through to the local cache,
// and falls back to the cached snapshot when the API is unreachable:
//
//	Trigger                     Provider                       Local cache
//	┌────────────────┐         ┌──────────────────────┐        ┌───────────┐
//	│ identity known │────────→│ FetchUser            │──ok───→│ SaveUsers │
//	│ filters change │─(500ms)→│ FetchTargets         │──ok───→│ SaveTargets│
//	│ online event   │────────→│ both, once each      │←─fail──│ LoadAll*  │
//	└────────────────┘         └──────────────────────┘        └───────────┘
//
// # Freshness
//
// User data and targets each carry a Freshness:
//
//   - Unknown: nothing has settled yet. Targets pre-filled from the cache by
//     Start are still Unknown and do not set IsOffline.
//   - Live: the last fetch on that axis succeeded.
//   - StaleOffline: the last fetch failed and cached data is shown.
//
// IsOffline is true while either axis is StaleOffline, so one axis coming
// back does not hide the other still serving cached data. LastError holds
// the target error when there is one, else the user error.
//
// # Offline fallback
//
// When the user fetch fails, only cached users whose id matches the
// identity are shown. When the target fetch fails, the whole cached target
// snapshot is shown regardless of the active filters. Options.OfflineFilter
// applies the filters client-side instead.
//
// # Ordering
//
// Filter changes are debounced: only the filters in effect when the window
// elapses are fetched. Requests already in flight are not cancelled; each
// fetch takes a sequence number and a response older than the newest one
// applied is discarded, so the last trigger wins.
//
// Loading counts in-flight fetches and is true while any is pending.
//
// # Subscribers
//
// Subscribe delivers a Snapshot after every change. Snapshots are copies;
// callers may mutate them freely.
package state
