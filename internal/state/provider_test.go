package state

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/fiscal/internal/api"
	"github.com/five82/fiscal/internal/cache"
	"github.com/five82/fiscal/internal/session"
)

type fakeFetcher struct {
	mu          sync.Mutex
	targets     func(call int, f api.Filters) ([]api.Target, error)
	users       func(id int64) ([]api.User, error)
	targetCalls []api.Filters
	userCalls   []int64
}

func (f *fakeFetcher) FetchTargets(_ context.Context, filters api.Filters) ([]api.Target, error) {
	f.mu.Lock()
	f.targetCalls = append(f.targetCalls, filters)
	call := len(f.targetCalls)
	fn := f.targets
	f.mu.Unlock()
	if fn == nil {
		return []api.Target{}, nil
	}
	return fn(call, filters)
}

func (f *fakeFetcher) FetchUser(_ context.Context, id int64) ([]api.User, error) {
	f.mu.Lock()
	f.userCalls = append(f.userCalls, id)
	fn := f.users
	f.mu.Unlock()
	if fn == nil {
		return []api.User{{ID: id}}, nil
	}
	return fn(id)
}

func (f *fakeFetcher) counts() (targets, users int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targetCalls), len(f.userCalls)
}

func (f *fakeFetcher) lastFilters() api.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.targetCalls) == 0 {
		return api.Filters{}
	}
	return f.targetCalls[len(f.targetCalls)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func targetIDs(targets []api.Target) []int64 {
	ids := make([]int64, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func newTestProvider(f api.Fetcher, c *cache.Cache, opts Options) *Provider {
	opts.Logger = zerolog.Nop()
	p := NewProvider(f, c, opts)
	return p
}

var errDown = errors.New("connection refused")

func TestFetchTargetsFullReplacement(t *testing.T) {
	responses := [][]api.Target{
		{{ID: 1}, {ID: 2}, {ID: 3}},
		{{ID: 4}},
		{{ID: 2}, {ID: 5}},
	}
	f := &fakeFetcher{targets: func(call int, _ api.Filters) ([]api.Target, error) {
		return responses[call-1], nil
	}}
	p := newTestProvider(f, cache.New(cache.NewMemory(), zerolog.Nop()), Options{})
	t.Cleanup(p.Close)

	for i, want := range responses {
		if err := p.FetchTargets(context.Background()); err != nil {
			t.Fatalf("FetchTargets #%d returned error: %v", i+1, err)
		}
		got := p.Snapshot().Targets
		if len(got) != len(want) {
			t.Fatalf("after fetch %d targets = %v, want %v", i+1, targetIDs(got), targetIDs(want))
		}
		for j := range want {
			if got[j].ID != want[j].ID {
				t.Fatalf("after fetch %d targets = %v, want %v", i+1, targetIDs(got), targetIDs(want))
			}
		}
	}
}

func TestDebouncedFilterFetch(t *testing.T) {
	f := &fakeFetcher{targets: func(_ int, filters api.Filters) ([]api.Target, error) {
		if filters.Status != string(api.StatusDone) {
			return []api.Target{{ID: 99}}, nil
		}
		return []api.Target{{ID: 1, Status: api.StatusDone}}, nil
	}}
	p := newTestProvider(f, cache.New(cache.NewMemory(), zerolog.Nop()), Options{Debounce: 30 * time.Millisecond})
	t.Cleanup(p.Close)

	p.SetFilters(api.Filters{Status: "NÃO INICIADA"})
	p.UpdateFilters(func(cur api.Filters) api.Filters {
		cur.Status = string(api.StatusDone)
		return cur
	})

	if n, _ := f.counts(); n != 0 {
		t.Fatalf("fetched %d times before debounce window elapsed", n)
	}
	waitFor(t, "debounced fetch", func() bool {
		return p.Snapshot().TargetFreshness == Live
	})
	time.Sleep(60 * time.Millisecond)

	if n, _ := f.counts(); n != 1 {
		t.Fatalf("target fetches = %d, want 1", n)
	}
	if got := f.lastFilters().Status; got != string(api.StatusDone) {
		t.Fatalf("fetched with status %q, want last value", got)
	}
	snap := p.Snapshot()
	if ids := targetIDs(snap.Targets); len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("targets = %v, want [1]", ids)
	}
	if snap.IsOffline {
		t.Fatalf("IsOffline = true after live fetch")
	}
}

func TestOfflineFallbackIgnoresFilters(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), zerolog.Nop())
	_ = c.SaveTargets(ctx, []api.Target{
		{ID: 5, Status: api.StatusDone},
		{ID: 6, Status: api.StatusNotStarted},
	})

	f := &fakeFetcher{targets: func(int, api.Filters) ([]api.Target, error) { return nil, errDown }}
	p := newTestProvider(f, c, Options{Debounce: time.Hour})
	t.Cleanup(p.Close)
	p.SetFilters(api.Filters{Status: string(api.StatusDone)})

	if err := p.FetchTargets(ctx); !errors.Is(err, errDown) {
		t.Fatalf("FetchTargets error = %v, want remote error", err)
	}
	snap := p.Snapshot()
	if ids := targetIDs(snap.Targets); len(ids) != 2 || ids[0] != 5 || ids[1] != 6 {
		t.Fatalf("targets = %v, want whole snapshot [5 6]", ids)
	}
	if !snap.IsOffline || snap.TargetFreshness != StaleOffline {
		t.Fatalf("IsOffline = %v freshness = %v, want offline stale", snap.IsOffline, snap.TargetFreshness)
	}
	if !errors.Is(snap.LastError, errDown) {
		t.Fatalf("LastError = %v", snap.LastError)
	}
}

func TestOfflineFilterOption(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), zerolog.Nop())
	_ = c.SaveTargets(ctx, []api.Target{
		{ID: 5, Status: api.StatusInService},
		{ID: 6, Status: api.StatusNotStarted},
	})

	f := &fakeFetcher{targets: func(int, api.Filters) ([]api.Target, error) { return nil, errDown }}
	p := newTestProvider(f, c, Options{Debounce: time.Hour, OfflineFilter: true})
	t.Cleanup(p.Close)
	p.SetFilters(api.Filters{Status: string(api.StatusInProgress)})

	_ = p.FetchTargets(ctx)
	if ids := targetIDs(p.Snapshot().Targets); len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("targets = %v, want filtered [5]", ids)
	}
}

func TestOfflineFallbackWithoutCache(t *testing.T) {
	f := &fakeFetcher{targets: func(int, api.Filters) ([]api.Target, error) { return nil, errDown }}
	p := newTestProvider(f, nil, Options{})
	t.Cleanup(p.Close)

	_ = p.FetchTargets(context.Background())
	snap := p.Snapshot()
	if len(snap.Targets) != 0 || !snap.IsOffline {
		t.Fatalf("targets = %v offline = %v, want empty offline", targetIDs(snap.Targets), snap.IsOffline)
	}
}

func TestLiveFetchWritesThrough(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), zerolog.Nop())
	f := &fakeFetcher{targets: func(int, api.Filters) ([]api.Target, error) {
		return []api.Target{{ID: 8}, {ID: 9}}, nil
	}}
	p := newTestProvider(f, c, Options{})
	t.Cleanup(p.Close)

	if err := p.FetchTargets(ctx); err != nil {
		t.Fatalf("FetchTargets returned error: %v", err)
	}
	cached, _ := c.LoadAllTargets(ctx)
	if ids := targetIDs(cached); len(ids) != 2 || ids[0] != 8 {
		t.Fatalf("cached = %v, want [8 9]", ids)
	}
}

func TestLiveFetchSurvivesDisabledCache(t *testing.T) {
	f := &fakeFetcher{targets: func(int, api.Filters) ([]api.Target, error) {
		return []api.Target{{ID: 1}}, nil
	}}
	p := newTestProvider(f, cache.New(cache.Disabled{Reason: errors.New("test")}, zerolog.Nop()), Options{})
	t.Cleanup(p.Close)

	if err := p.FetchTargets(context.Background()); err != nil {
		t.Fatalf("FetchTargets returned error: %v", err)
	}
	if snap := p.Snapshot(); snap.TargetFreshness != Live || len(snap.Targets) != 1 {
		t.Fatalf("snapshot = %+v, want live with one target", snap)
	}
}

func TestUserFallbackMatchesIdentityOnly(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), zerolog.Nop())
	_ = c.SaveUsers(ctx, []api.User{{ID: 1}, {ID: 7, Name: "Ana"}, {ID: 70}, {ID: 2}})

	f := &fakeFetcher{users: func(int64) ([]api.User, error) { return nil, errDown }}
	p := newTestProvider(f, c, Options{Identity: &session.Identity{ID: 7}})
	t.Cleanup(p.Close)

	if err := p.FetchUser(ctx); !errors.Is(err, errDown) {
		t.Fatalf("FetchUser error = %v, want remote error", err)
	}
	snap := p.Snapshot()
	if len(snap.UserData) != 1 || snap.UserData[0].ID != 7 {
		t.Fatalf("UserData = %+v, want only id 7", snap.UserData)
	}
	if !snap.IsOffline || snap.UserFreshness != StaleOffline {
		t.Fatalf("IsOffline = %v freshness = %v", snap.IsOffline, snap.UserFreshness)
	}
}

func TestFetchUserLive(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), zerolog.Nop())
	f := &fakeFetcher{users: func(id int64) ([]api.User, error) {
		return []api.User{{ID: id, Name: "Ana"}}, nil
	}}
	p := newTestProvider(f, c, Options{Identity: &session.Identity{ID: 3}})
	t.Cleanup(p.Close)

	if err := p.FetchUser(ctx); err != nil {
		t.Fatalf("FetchUser returned error: %v", err)
	}
	snap := p.Snapshot()
	if len(snap.UserData) != 1 || snap.UserData[0].Name != "Ana" || snap.UserFreshness != Live {
		t.Fatalf("snapshot = %+v", snap)
	}
	cached, _ := c.LoadAllUsers(ctx)
	if len(cached) != 1 || cached[0].ID != 3 {
		t.Fatalf("cached users = %+v", cached)
	}
}

func TestFetchUserWithoutIdentity(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestProvider(f, nil, Options{})
	t.Cleanup(p.Close)

	if err := p.FetchUser(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("FetchUser error = %v, want ErrNoIdentity", err)
	}
	if _, users := f.counts(); users != 0 {
		t.Fatalf("user fetches = %d, want 0", users)
	}
}

func TestSetIdentityTriggersUserFetch(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestProvider(f, nil, Options{})
	t.Cleanup(p.Close)

	p.SetIdentity(&session.Identity{ID: 4})
	waitFor(t, "user fetch", func() bool { return p.Snapshot().UserFreshness == Live })

	p.SetIdentity(&session.Identity{ID: 4, Name: "same user"})
	time.Sleep(30 * time.Millisecond)
	if _, users := f.counts(); users != 1 {
		t.Fatalf("user fetches = %d, want 1 for unchanged id", users)
	}

	p.SetIdentity(nil)
	snap := p.Snapshot()
	if snap.Identity != nil || snap.UserData != nil || snap.UserFreshness != Unknown {
		t.Fatalf("snapshot after logout = %+v", snap)
	}
}

func TestHandleOnlineRunsBothCyclesOnce(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestProvider(f, nil, Options{
		Debounce: 20 * time.Millisecond,
		Identity: &session.Identity{ID: 1},
	})
	t.Cleanup(p.Close)

	p.SetFilters(api.Filters{TeamID: "3"})
	p.HandleOnline(context.Background())
	time.Sleep(80 * time.Millisecond)

	targets, users := f.counts()
	if targets != 1 || users != 1 {
		t.Fatalf("fetches targets=%d users=%d, want 1 and 1", targets, users)
	}
	if got := f.lastFilters().TeamID; got != "3" {
		t.Fatalf("target fetch teamId = %q, want 3", got)
	}
}

func TestStartHydratesWithoutOfflineFlag(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), zerolog.Nop())
	_ = c.SaveTargets(ctx, []api.Target{{ID: 5}, {ID: 6}})

	f := &fakeFetcher{}
	p := newTestProvider(f, c, Options{Debounce: time.Hour})
	t.Cleanup(p.Close)

	p.Start(ctx)
	snap := p.Snapshot()
	if ids := targetIDs(snap.Targets); len(ids) != 2 {
		t.Fatalf("hydrated targets = %v, want [5 6]", ids)
	}
	if snap.IsOffline || snap.TargetFreshness != Unknown {
		t.Fatalf("IsOffline = %v freshness = %v, want false unknown", snap.IsOffline, snap.TargetFreshness)
	}
	if targets, _ := f.counts(); targets != 0 {
		t.Fatalf("fetched before debounce window")
	}
}

func TestStartFetchesUserWhenIdentityKnown(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestProvider(f, nil, Options{
		Debounce: 10 * time.Millisecond,
		Identity: &session.Identity{ID: 2},
	})
	t.Cleanup(p.Close)

	p.Start(context.Background())
	waitFor(t, "initial cycles", func() bool {
		targets, users := f.counts()
		return targets == 1 && users == 1
	})
}

func TestStaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := &fakeFetcher{targets: func(call int, _ api.Filters) ([]api.Target, error) {
		if call == 1 {
			close(started)
			<-release
			return []api.Target{{ID: 1}}, nil
		}
		return []api.Target{{ID: 2}}, nil
	}}
	p := newTestProvider(f, nil, Options{})
	t.Cleanup(p.Close)

	done := make(chan struct{})
	go func() {
		_ = p.FetchTargets(context.Background())
		close(done)
	}()
	<-started
	if !p.Snapshot().Loading {
		t.Fatalf("Loading = false while fetch in flight")
	}

	if err := p.FetchTargets(context.Background()); err != nil {
		t.Fatalf("second FetchTargets returned error: %v", err)
	}
	if !p.Snapshot().Loading {
		t.Fatalf("Loading = false while first fetch still in flight")
	}
	close(release)
	<-done

	snap := p.Snapshot()
	if ids := targetIDs(snap.Targets); len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("targets = %v, want newest response [2]", ids)
	}
	if snap.Loading {
		t.Fatalf("Loading = true after all fetches settled")
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	f := &fakeFetcher{targets: func(int, api.Filters) ([]api.Target, error) {
		return []api.Target{{ID: 1}}, nil
	}}
	p := newTestProvider(f, nil, Options{})
	t.Cleanup(p.Close)

	var mu sync.Mutex
	var seen []Snapshot
	unsubscribe := p.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	_ = p.FetchTargets(context.Background())
	mu.Lock()
	n := len(seen)
	last := seen[n-1]
	mu.Unlock()
	if n < 2 {
		t.Fatalf("notifications = %d, want loading and settled", n)
	}
	if last.Loading || len(last.Targets) != 1 {
		t.Fatalf("last snapshot = %+v", last)
	}

	unsubscribe()
	_ = p.FetchTargets(context.Background())
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Fatalf("notified after unsubscribe")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	f := &fakeFetcher{targets: func(int, api.Filters) ([]api.Target, error) {
		return []api.Target{{ID: 1}}, nil
	}}
	p := newTestProvider(f, nil, Options{Identity: &session.Identity{ID: 1, Roles: []string{"admin"}}})
	t.Cleanup(p.Close)
	_ = p.FetchTargets(context.Background())

	snap := p.Snapshot()
	snap.Targets[0].ID = 999
	snap.Identity.Roles[0] = "changed"

	again := p.Snapshot()
	if again.Targets[0].ID != 1 || again.Identity.Roles[0] != "admin" {
		t.Fatalf("Snapshot shares memory with provider state")
	}
}

func TestSnapshotHelpers(t *testing.T) {
	team := int64(3)
	snap := Snapshot{Targets: []api.Target{
		{ID: 1, Status: api.StatusNotStarted},
		{ID: 2, Status: api.StatusInService, TeamID: &team},
		{ID: 3, Status: api.StatusInProgress},
		{ID: 4, Status: api.StatusDone, TeamID: &team},
	}}
	counts := snap.StatusCounts()
	if counts[api.StatusInProgress] != 2 || counts[api.StatusNotStarted] != 1 || counts[api.StatusDone] != 1 {
		t.Fatalf("StatusCounts = %v", counts)
	}
	if ids := targetIDs(snap.Unassigned()); len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("Unassigned = %v, want [1 3]", ids)
	}
	if Live.String() != "live" || StaleOffline.String() != "stale-offline" || Unknown.String() != "unknown" {
		t.Fatalf("Freshness strings wrong")
	}
}

func TestCloseStopsPendingDebounce(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestProvider(f, nil, Options{Debounce: 20 * time.Millisecond})

	p.SetFilters(api.Filters{NumeroArt: "123"})
	p.Close()
	time.Sleep(60 * time.Millisecond)

	if targets, _ := f.counts(); targets != 0 {
		t.Fatalf("target fetches after Close = %d, want 0", targets)
	}
	p.SetFilters(api.Filters{NumeroArt: "456"})
	p.Close()
}

func TestSeedFiltersDoNotScheduleFetch(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestProvider(f, nil, Options{Debounce: 10 * time.Millisecond, Filters: api.Filters{TeamID: "4"}})
	t.Cleanup(p.Close)

	time.Sleep(50 * time.Millisecond)
	if n, _ := f.counts(); n != 0 {
		t.Fatalf("target fetches = %d, want 0 before an explicit fetch", n)
	}
	if err := p.FetchTargets(context.Background()); err != nil {
		t.Fatalf("FetchTargets: %v", err)
	}
	if got := f.lastFilters(); got.TeamID != "4" {
		t.Fatalf("filters = %+v, want seeded team 4", got)
	}
}

func TestOfflineUntilBothAxesRecover(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), zerolog.Nop())
	_ = c.SaveTargets(ctx, []api.Target{{ID: 1}, {ID: 2}})

	var mu sync.Mutex
	targetsDown := true
	f := &fakeFetcher{
		targets: func(int, api.Filters) ([]api.Target, error) {
			mu.Lock()
			defer mu.Unlock()
			if targetsDown {
				return nil, errDown
			}
			return []api.Target{{ID: 3}}, nil
		},
		users: func(id int64) ([]api.User, error) {
			// Settle after the target failure.
			time.Sleep(30 * time.Millisecond)
			return []api.User{{ID: id}}, nil
		},
	}
	p := newTestProvider(f, c, Options{Identity: &session.Identity{ID: 7}})
	t.Cleanup(p.Close)

	p.HandleOnline(ctx)
	snap := p.Snapshot()
	if snap.UserFreshness != Live || snap.TargetFreshness != StaleOffline {
		t.Fatalf("freshness user=%v targets=%v, want live/stale-offline", snap.UserFreshness, snap.TargetFreshness)
	}
	if !snap.IsOffline {
		t.Fatal("IsOffline = false while targets are served from cache")
	}
	if !errors.Is(snap.LastError, errDown) {
		t.Fatalf("LastError = %v, want %v", snap.LastError, errDown)
	}
	if ids := targetIDs(snap.Targets); len(ids) != 2 {
		t.Fatalf("targets = %v, want cached [1 2]", ids)
	}

	mu.Lock()
	targetsDown = false
	mu.Unlock()
	if err := p.FetchTargets(ctx); err != nil {
		t.Fatalf("FetchTargets returned error: %v", err)
	}
	snap = p.Snapshot()
	if snap.IsOffline || snap.LastError != nil {
		t.Fatalf("IsOffline=%v LastError=%v after both axes recovered", snap.IsOffline, snap.LastError)
	}
}

func TestUserFailureKeepsOfflineAfterTargetSuccess(t *testing.T) {
	f := &fakeFetcher{users: func(int64) ([]api.User, error) { return nil, errDown }}
	p := newTestProvider(f, cache.New(cache.NewMemory(), zerolog.Nop()), Options{Identity: &session.Identity{ID: 7}})
	t.Cleanup(p.Close)

	_ = p.FetchUser(context.Background())
	if err := p.FetchTargets(context.Background()); err != nil {
		t.Fatalf("FetchTargets returned error: %v", err)
	}
	snap := p.Snapshot()
	if !snap.IsOffline || !errors.Is(snap.LastError, errDown) {
		t.Fatalf("IsOffline=%v LastError=%v, want offline with user error", snap.IsOffline, snap.LastError)
	}

	p.SetIdentity(nil)
	if snap := p.Snapshot(); snap.IsOffline || snap.LastError != nil {
		t.Fatalf("after logout IsOffline=%v LastError=%v, want clear", snap.IsOffline, snap.LastError)
	}
}
