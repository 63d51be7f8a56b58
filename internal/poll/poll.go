// Package poll keeps a cached, periodically refreshed view of one REST
// resource. A Subscription fetches as soon as it is created, serves the last
// good data while a refresh is running or has failed, and stops writing state
// the moment it is stopped.
package poll

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval is used when Options.RefreshInterval is zero.
const DefaultRefreshInterval = 30 * time.Second

// Fetcher performs a GET on target (path plus query) and decodes the body
// into out. *client.Client satisfies it.
type Fetcher interface {
	GetJSON(ctx context.Context, target string, out interface{}) error
}

// ListPage is the response shape of list endpoints.
type ListPage struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// Result is the observable state of a subscription. A failed refresh sets Err
// and keeps the previous Data.
type Result[T any] struct {
	Data          *T
	Loading       bool
	Err           error
	LastFetchedAt time.Time
}

// Fresh reports whether Data came from the most recent completed fetch.
func (r Result[T]) Fresh() bool {
	return r.Data != nil && r.Err == nil
}

// Options configures a Subscription.
type Options[T any] struct {
	AutoRefresh     bool
	RefreshInterval time.Duration

	// OnChange receives every new Result in order. It runs on the goroutine
	// that changed the state and must not call Stop, Refetch or SetEndpoint.
	OnChange func(Result[T])

	Logger *slog.Logger
}

// Subscription is a live view of one endpoint.
type Subscription[T any] struct {
	fetcher  Fetcher
	onChange func(Result[T])
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// notifyMu orders OnChange calls; mu guards everything below it.
	notifyMu sync.Mutex
	mu       sync.Mutex
	live     bool
	endpoint Endpoint
	gen      uint64 // bumped on every endpoint change
	seq      uint64 // last issued fetch
	applied  uint64 // last fetch whose outcome was written
	inflight int    // unresolved fetches of the current generation
	result   Result[T]
	ticker   *time.Ticker
	loopDone chan struct{}
}

// Subscribe starts a subscription and issues the first fetch immediately.
func Subscribe[T any](ctx context.Context, f Fetcher, ep Endpoint, opts Options[T]) *Subscription[T] {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		fetcher:  f,
		onChange: opts.OnChange,
		interval: opts.RefreshInterval,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		live:     true,
		endpoint: ep,
	}

	s.Refetch()

	if opts.AutoRefresh {
		s.mu.Lock()
		s.ticker = time.NewTicker(s.interval)
		s.loopDone = make(chan struct{})
		ticks := s.ticker.C
		s.mu.Unlock()
		go s.refreshLoop(ticks)
	}
	return s
}

func (s *Subscription[T]) refreshLoop(ticks <-chan time.Time) {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticks:
			s.Refetch()
		}
	}
}

// Snapshot returns the current result.
func (s *Subscription[T]) Snapshot() Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Endpoint returns the endpoint currently subscribed to.
func (s *Subscription[T]) Endpoint() Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Refetch issues another fetch for the current endpoint. Overlapping calls
// are allowed: Loading stays true until every issued fetch has resolved, and
// an older fetch never overwrites the outcome of a newer one.
func (s *Subscription[T]) Refetch() {
	s.update(func() bool {
		s.issueLocked()
		return true
	})
}

// SetEndpoint switches the subscription to ep. Results still in flight for
// the previous endpoint are discarded when they arrive. The refresh timer
// restarts from now. Setting an equal endpoint is a no-op.
func (s *Subscription[T]) SetEndpoint(ep Endpoint) {
	s.update(func() bool {
		if ep.Equal(s.endpoint) {
			return false
		}
		s.endpoint = ep
		s.gen++
		s.applied = s.seq
		s.inflight = 0
		if s.ticker != nil {
			s.ticker.Reset(s.interval)
		}
		s.issueLocked()
		return true
	})
}

// Stop detaches the subscription. Once Stop returns no further state change
// or OnChange call happens, whatever is still in flight.
func (s *Subscription[T]) Stop() {
	s.mu.Lock()
	if !s.live {
		s.mu.Unlock()
		return
	}
	s.live = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	done := s.loopDone
	s.mu.Unlock()

	s.cancel()

	// Wait out an OnChange that started before live was cleared.
	s.notifyMu.Lock()
	s.notifyMu.Unlock()

	if done != nil {
		<-done
	}
}

// issueLocked starts a fetch for the current generation. s.mu must be held.
func (s *Subscription[T]) issueLocked() {
	s.seq++
	s.inflight++
	s.result.Loading = true
	go s.fetch(s.endpoint, s.gen, s.seq)
}

func (s *Subscription[T]) fetch(ep Endpoint, gen, seq uint64) {
	var out T
	err := s.fetcher.GetJSON(s.ctx, ep.String(), &out)
	now := time.Now()

	s.update(func() bool {
		if gen != s.gen {
			s.logger.Debug("poll.Subscription: discarding result for replaced endpoint", "endpoint", ep.String())
			return false
		}
		s.inflight--
		if seq > s.applied {
			s.applied = seq
			if err != nil {
				s.result.Err = err
				s.logger.Warn("poll.Subscription: fetch failed", "endpoint", ep.String(), "error", err)
			} else {
				s.result.Data = &out
				s.result.Err = nil
				s.result.LastFetchedAt = now
			}
		}
		s.result.Loading = s.inflight > 0
		return true
	})
}

// update applies fn under the state lock if the subscription is still live
// and publishes the new result when fn reports a change.
func (s *Subscription[T]) update(fn func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !s.live {
		s.mu.Unlock()
		return
	}
	changed := fn()
	snap := s.result
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(snap)
	}
}

// Once performs a single fetch of ep without caching or refresh.
func Once[T any](ctx context.Context, f Fetcher, ep Endpoint) Result[T] {
	var out T
	if err := f.GetJSON(ctx, ep.String(), &out); err != nil {
		return Result[T]{Err: err}
	}
	return Result[T]{Data: &out, LastFetchedAt: time.Now()}
}
