// Package netwatch tracks whether the API is reachable and tells subscribers
// when connectivity comes back.
package netwatch

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 3 * time.Second
	maxBackoff      = 30 * time.Second
)

// Prober checks reachability once.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// DialProber opens a TCP connection to Address.
type DialProber struct {
	Address string
	Timeout time.Duration
}

// NewDialProber derives host:port from an API URL such as
// "http://10.0.0.5:3333" or "127.0.0.1:3333".
func NewDialProber(apiURL string) (DialProber, error) {
	raw := strings.TrimSpace(apiURL)
	if raw == "" {
		return DialProber{}, fmt.Errorf("api url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return DialProber{}, fmt.Errorf("parse api url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return DialProber{}, fmt.Errorf("api url %q has no host", apiURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return DialProber{Address: net.JoinHostPort(host, port), Timeout: defaultTimeout}, nil
}

// Probe dials the address and closes the connection immediately.
func (p DialProber) Probe(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Monitor polls a Prober and reports offline to online transitions.
type Monitor struct {
	probe    Prober
	interval time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	known     bool
	online    bool
	failures  int
	lastCheck time.Time
	nextSub   int
	subs      map[int]func(time.Time)

	wake chan struct{}
}

// Options tune a Monitor.
type Options struct {
	Interval time.Duration
	Logger   zerolog.Logger
}

// New constructs a monitor. Call Run to start probing.
func New(probe Prober, opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		log:      opts.Logger,
		subs:     make(map[int]func(time.Time)),
		wake:     make(chan struct{}, 1),
	}
}

// reachable reports the last observed reachability. Before the first probe it
// returns true, matching a client that assumes connectivity until told
// otherwise.
func (m *Monitor) reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.known || m.online
}

// consecutiveFailures returns the number of failed probes in a row.
func (m *Monitor) consecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Subscribe registers fn for restored events. The returned func removes it.
func (m *Monitor) Subscribe(fn func(at time.Time)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Notify injects a restored event regardless of probe state and asks the
// run loop to re-probe right away.
func (m *Monitor) Notify() {
	m.mu.Lock()
	m.known = true
	m.online = true
	m.failures = 0
	subs := m.subscribers()
	m.mu.Unlock()

	m.log.Info().Msg("connectivity restore requested")
	emit(subs, time.Now())

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Check probes once and updates state, emitting a restored event when the
// API becomes reachable after being unreachable.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.probe.Probe(ctx)
	now := time.Now()

	m.mu.Lock()
	wasKnown, wasOnline := m.known, m.online
	m.known = true
	m.lastCheck = now
	var subs []func(time.Time)
	if err != nil {
		m.online = false
		m.failures++
	} else {
		m.online = true
		m.failures = 0
		if wasKnown && !wasOnline {
			subs = m.subscribers()
		}
	}
	failures := m.failures
	m.mu.Unlock()

	switch {
	case err != nil && (!wasKnown || wasOnline):
		m.log.Warn().Err(err).Msg("api unreachable")
	case err != nil:
		m.log.Debug().Err(err).Int("failures", failures).Msg("api still unreachable")
	case subs != nil:
		m.log.Info().Msg("api reachable again")
	}
	emit(subs, now)
	return err == nil
}

// Run probes until ctx is done, backing off while offline.
func (m *Monitor) Run(ctx context.Context) {
	for {
		m.Check(ctx)
		delay := calculateBackoff(m.consecutiveFailures(), m.interval)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (m *Monitor) subscribers() []func(time.Time) {
	out := make([]func(time.Time), 0, len(m.subs))
	for _, fn := range m.subs {
		out = append(out, fn)
	}
	return out
}

func emit(subs []func(time.Time), at time.Time) {
	for _, fn := range subs {
		fn(at)
	}
}

// calculateBackoff doubles base once per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
