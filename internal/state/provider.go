package state

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/fiscal/internal/api"
	"github.com/five82/fiscal/internal/cache"
	"github.com/five82/fiscal/internal/session"
)

// DefaultDebounce is the quiet period after a filter change before targets
// are fetched.
const DefaultDebounce = 500 * time.Millisecond

// ErrNoIdentity is returned by FetchUser when no user is logged in.
var ErrNoIdentity = errors.New("no identity")

// Options tune a Provider.
type Options struct {
	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
	// OfflineFilter applies the active filters to the offline target
	// snapshot. When false the whole snapshot is shown.
	OfflineFilter bool
	Identity      *session.Identity
	// Filters seeds the active filters without scheduling a fetch.
	Filters api.Filters
	Logger  zerolog.Logger
}

// Provider owns the in-memory user and target views. Every fetch tries the
// API first, writes successes through to the cache, and serves the cache
// when the API fails.
type Provider struct {
	api           api.Fetcher
	cache         *cache.Cache
	debounce      time.Duration
	offlineFilter bool
	log           zerolog.Logger
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	snap        Snapshot
	inflight    int
	targetSeq   uint64
	targetDone  uint64
	userSeq     uint64
	userDone    uint64
	userErr     error
	targetErr   error
	debounceGen uint64
	timer       *time.Timer
	closed      bool

	notifyMu sync.Mutex
	subMu    sync.Mutex
	nextSub  int
	subs     map[int]func(Snapshot)

	closeOnce sync.Once
}

// NewProvider constructs a provider. A nil cache behaves as a disabled store.
func NewProvider(fetcher api.Fetcher, c *cache.Cache, opts Options) *Provider {
	if c == nil {
		c = cache.New(nil, opts.Logger)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		api:           fetcher,
		cache:         c,
		debounce:      debounce,
		offlineFilter: opts.OfflineFilter,
		log:           opts.Logger,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		subs:          make(map[int]func(Snapshot)),
	}
	p.snap.Filters = opts.Filters
	if opts.Identity != nil {
		id := *opts.Identity
		p.snap.Identity = &id
	}
	return p
}

// Start hydrates targets from the cache when none are loaded, schedules the
// initial targets fetch and, when an identity is known, fetches the user.
// The provider closes itself when ctx is done.
func (p *Provider) Start(ctx context.Context) {
	p.hydrate(ctx)

	p.mu.Lock()
	hasIdentity := p.snap.Identity != nil
	p.mu.Unlock()

	p.scheduleTargets()
	if hasIdentity {
		p.goFetchUser()
	}

	go func() {
		select {
		case <-ctx.Done():
			p.Close()
		case <-p.ctx.Done():
		}
	}()
}

// Close stops pending debounced fetches and waits for in-flight ones.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.stopTimer()
		p.mu.Unlock()
		p.cancel()
		p.wg.Wait()
	})
}

// Snapshot returns a copy of the current state.
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.clone()
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that changed the state and must not call back
// into the provider synchronously.
func (p *Provider) Subscribe(fn func(Snapshot)) func() {
	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
		})
	}
}

// SetFilters replaces the active filters and schedules a debounced fetch.
func (p *Provider) SetFilters(f api.Filters) {
	p.UpdateFilters(func(api.Filters) api.Filters { return f })
}

// UpdateFilters applies fn to the active filters and schedules a debounced
// fetch.
func (p *Provider) UpdateFilters(fn func(api.Filters) api.Filters) {
	p.mu.Lock()
	p.snap.Filters = fn(p.snap.Filters)
	filters := p.snap.Filters
	p.mu.Unlock()

	p.log.Debug().Str("filters", filters.String()).Msg("filters changed")
	p.notify()
	p.scheduleTargets()
}

// SetIdentity records the logged-in user. A newly known identity triggers a
// user fetch; nil clears the user view.
func (p *Provider) SetIdentity(id *session.Identity) {
	p.mu.Lock()
	prev := p.snap.Identity
	if id == nil {
		p.snap.Identity = nil
		p.snap.UserData = nil
		p.snap.UserFreshness = Unknown
		p.userErr = nil
		p.settle()
		p.userSeq++
		p.userDone = p.userSeq
	} else {
		dup := *id
		p.snap.Identity = &dup
	}
	p.mu.Unlock()

	p.notify()
	if id != nil && (prev == nil || prev.ID != id.ID) {
		p.goFetchUser()
	}
}

// HandleOnline re-runs the user and target cycles once each. A pending
// debounced fetch is folded into this one.
func (p *Provider) HandleOnline(ctx context.Context) {
	p.mu.Lock()
	p.debounceGen++
	p.stopTimer()
	hasIdentity := p.snap.Identity != nil
	p.mu.Unlock()

	p.log.Info().Msg("connectivity restored, refreshing")

	var wg sync.WaitGroup
	if hasIdentity {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.FetchUser(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.FetchTargets(ctx)
	}()
	wg.Wait()
}

// FetchTargets fetches targets for the active filters. On failure the
// cached snapshot is served and the remote error is returned; the state is
// updated either way.
func (p *Provider) FetchTargets(ctx context.Context) error {
	p.mu.Lock()
	p.targetSeq++
	seq := p.targetSeq
	filters := p.snap.Filters
	p.inflight++
	p.snap.Loading = true
	p.mu.Unlock()
	p.notify()

	targets, err := p.api.FetchTargets(ctx, filters)
	if err == nil {
		if cerr := p.cache.SaveTargets(ctx, targets); cerr != nil {
			p.logCacheError(cerr, "cache targets")
		}
	} else {
		p.log.Warn().Err(err).Str("filters", filters.String()).Msg("targets fetch failed, using offline snapshot")
		targets = p.offlineTargets(ctx, filters)
	}

	p.mu.Lock()
	p.finish()
	if seq < p.targetDone || p.closed {
		p.mu.Unlock()
		p.log.Debug().Uint64("seq", seq).Msg("discarding superseded targets response")
		p.notify()
		return err
	}
	p.targetDone = seq
	p.snap.Targets = targets
	p.snap.LastUpdated = p.now()
	p.targetErr = err
	if err == nil {
		p.snap.TargetFreshness = Live
	} else {
		p.snap.TargetFreshness = StaleOffline
	}
	p.settle()
	p.mu.Unlock()

	p.notify()
	return err
}

// FetchUser fetches the logged-in user's record. On failure cached records
// with the same id are served and the remote error is returned.
func (p *Provider) FetchUser(ctx context.Context) error {
	p.mu.Lock()
	if p.snap.Identity == nil {
		p.mu.Unlock()
		return ErrNoIdentity
	}
	id := p.snap.Identity.ID
	p.userSeq++
	seq := p.userSeq
	p.inflight++
	p.snap.Loading = true
	p.mu.Unlock()
	p.notify()

	users, err := p.api.FetchUser(ctx, id)
	if err == nil {
		if cerr := p.cache.SaveUsers(ctx, users); cerr != nil {
			p.logCacheError(cerr, "cache users")
		}
	} else {
		p.log.Warn().Err(err).Int64("user_id", id).Msg("user fetch failed, using offline snapshot")
		users = p.offlineUsers(ctx, id)
	}

	p.mu.Lock()
	p.finish()
	if seq < p.userDone || p.closed {
		p.mu.Unlock()
		p.log.Debug().Uint64("seq", seq).Msg("discarding superseded user response")
		p.notify()
		return err
	}
	p.userDone = seq
	p.snap.UserData = users
	p.snap.LastUpdated = p.now()
	p.userErr = err
	if err == nil {
		p.snap.UserFreshness = Live
	} else {
		p.snap.UserFreshness = StaleOffline
	}
	p.settle()
	p.mu.Unlock()

	p.notify()
	return err
}

func (p *Provider) offlineTargets(ctx context.Context, filters api.Filters) []api.Target {
	cached, err := p.cache.LoadAllTargets(ctx)
	if err != nil {
		p.logCacheError(err, "read cached targets")
		return []api.Target{}
	}
	if !p.offlineFilter || filters.Empty() {
		return cached
	}
	out := make([]api.Target, 0, len(cached))
	for _, t := range cached {
		if filters.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (p *Provider) offlineUsers(ctx context.Context, id int64) []api.User {
	cached, err := p.cache.LoadAllUsers(ctx)
	if err != nil {
		p.logCacheError(err, "read cached users")
		return []api.User{}
	}
	want := strconv.FormatInt(id, 10)
	out := make([]api.User, 0, 1)
	for _, u := range cached {
		if strconv.FormatInt(u.ID, 10) == want {
			out = append(out, u)
		}
	}
	return out
}

// hydrate pre-fills targets from the cache. It leaves IsOffline and
// freshness untouched.
func (p *Provider) hydrate(ctx context.Context) {
	p.mu.Lock()
	empty := len(p.snap.Targets) == 0
	p.mu.Unlock()
	if !empty {
		return
	}

	cached, err := p.cache.LoadAllTargets(ctx)
	if err != nil {
		p.logCacheError(err, "hydrate targets")
		return
	}
	if len(cached) == 0 {
		return
	}

	p.mu.Lock()
	if len(p.snap.Targets) == 0 && p.targetDone == 0 {
		p.snap.Targets = cached
	}
	p.mu.Unlock()
	p.log.Debug().Int("count", len(cached)).Msg("hydrated targets from cache")
	p.notify()
}

func (p *Provider) scheduleTargets() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.debounceGen++
	gen := p.debounceGen
	p.stopTimer()
	p.wg.Add(1)
	p.timer = time.AfterFunc(p.debounce, func() {
		defer p.wg.Done()
		p.mu.Lock()
		stale := gen != p.debounceGen || p.closed
		p.mu.Unlock()
		if stale {
			return
		}
		_ = p.FetchTargets(p.ctx)
	})
}

func (p *Provider) goFetchUser() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.wg.Done()
		if err := p.FetchUser(p.ctx); err != nil && !errors.Is(err, ErrNoIdentity) {
			p.log.Debug().Err(err).Msg("user fetch settled offline")
		}
	}()
}

// stopTimer cancels a pending debounced fetch. Must be called with mu held.
// settle derives IsOffline and LastError from both axes. Callers hold mu.
func (p *Provider) settle() {
	p.snap.IsOffline = p.snap.UserFreshness == StaleOffline || p.snap.TargetFreshness == StaleOffline
	switch {
	case p.targetErr != nil:
		p.snap.LastError = p.targetErr
	case p.userErr != nil:
		p.snap.LastError = p.userErr
	default:
		p.snap.LastError = nil
	}
}

func (p *Provider) stopTimer() {
	if p.timer != nil && p.timer.Stop() {
		p.wg.Done()
	}
	p.timer = nil
}

// finish must be called with mu held.
func (p *Provider) finish() {
	p.inflight--
	p.snap.Loading = p.inflight > 0
}

func (p *Provider) logCacheError(err error, what string) {
	if errors.Is(err, cache.ErrUnavailable) {
		p.log.Debug().Err(err).Msg(what)
		return
	}
	p.log.Warn().Err(err).Msg(what)
}

func (p *Provider) notify() {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	snap := p.Snapshot()
	p.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
