package topology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/cenkalti/backoff/v4"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/singleflight"
)

var Logger = logger.GetLogger("topology")

// ErrEmptyTopology is returned when a fetched topology has no nodes
var ErrEmptyTopology = errors.New("topology has no nodes")

// ErrClosed is returned by refreshes issued after Close
var ErrClosed = errors.New("topology store closed")

// IFetcher fetches the authoritative topology from a single node
type IFetcher interface {
	FetchTopology(ctx context.Context, node Node) (*Topology, error)
}

// Config holds the settings of a Store
type Config struct {
	Database        string
	Seeds           []string
	DisableUpdates  bool
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Backoff         common.BackoffConfig
}

// Store holds the current topology of one database. Readers get immutable snapshots,
// writers replace the snapshot wholesale.
type Store struct {
	config  Config
	fetcher IFetcher
	seed    *Topology

	current atomic.Pointer[Topology]
	group   singleflight.Group

	// fetches counts the fetch requests issued to the fetcher
	fetches atomic.Uint64
	// onChange is called after a topology was replaced
	onChange func(old, cur *Topology)

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewStore creates a store holding the seed topology built from the configured urls.
func NewStore(config Config, fetcher IFetcher) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		config:    config,
		fetcher:   fetcher,
		seed:      SeedTopology(config.Database, config.Seeds),
		ctx:       ctx,
		ctxCancel: cancel,
	}
	s.current.Store(s.seed)
	return s
}

// OnChange registers a callback invoked after every accepted topology replacement.
// It must be set before the store is shared.
func (s *Store) OnChange(fn func(old, cur *Topology)) {
	s.onChange = fn
}

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

// Current returns the latest topology snapshot without blocking
func (s *Store) Current() *Topology {
	return s.current.Load()
}

// Fetches returns the number of fetches issued so far
func (s *Store) Fetches() uint64 {
	return s.fetches.Load()
}

// --------------------------------------------------------------------------
// Writing
// --------------------------------------------------------------------------

// Apply replaces the current topology with t unless t is empty or older than the
// held one. It returns whether t was installed.
func (s *Store) Apply(t *Topology) (bool, error) {
	if t.Len() == 0 {
		return false, ErrEmptyTopology
	}
	for {
		old := s.current.Load()
		if old != nil && t.Stamp.Before(old.Stamp) {
			Logger.Debugf("discarding topology %s, holding %s", t.Stamp, old.Stamp)
			return false, nil
		}
		if s.current.CompareAndSwap(old, t) {
			Logger.Infof("topology updated to %s with %d nodes", t.Stamp, t.Len())
			if s.onChange != nil {
				s.onChange(old, t)
			}
			return true, nil
		}
	}
}

// Refresh fetches the topology from the given node and applies it. Concurrent
// refreshes and updates share one in-flight fetch.
func (s *Store) Refresh(ctx context.Context, node Node) (*Topology, error) {
	return s.coalesce(ctx, func() error {
		_, err := s.fetchAndApply(node)
		return err
	})
}

// Update fetches the topology trying the current nodes first and then the seed urls,
// stopping at the first node that answers. Concurrent callers share one in-flight update.
func (s *Store) Update(ctx context.Context) (*Topology, error) {
	return s.coalesce(ctx, s.update)
}

// coalesce runs fn at most once at a time. The shared call runs on the store context,
// so a caller giving up does not cancel the fetch for the others.
func (s *Store) coalesce(ctx context.Context, fn func() error) (*Topology, error) {
	if s.config.DisableUpdates {
		return s.Current(), nil
	}
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}

	ch := s.group.DoChan("topology", func() (interface{}, error) {
		return nil, fn()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return s.Current(), res.Err
		}
		return s.Current(), nil
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

func (s *Store) update() error {
	var errs []error
	tried := make(map[string]struct{})

	candidates := append([]Node{}, s.Current().Nodes...)
	candidates = append(candidates, s.seed.Nodes...)

	for _, node := range candidates {
		if _, ok := tried[node.URL]; ok {
			continue
		}
		tried[node.URL] = struct{}{}

		if _, err := s.fetchAndApply(node); err != nil {
			Logger.Debugf("topology fetch from %s failed: %v", node.URL, err)
			errs = append(errs, fmt.Errorf("%s: %w", node.URL, err))
			if s.ctx.Err() != nil {
				return ErrClosed
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to update topology from %d nodes: %w", len(tried), errors.Join(errs...))
}

func (s *Store) fetchAndApply(node Node) (bool, error) {
	ctx := s.ctx
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.config.FetchTimeout)
		defer cancel()
	}

	s.fetches.Add(1)
	t, err := s.fetcher.FetchTopology(ctx, node)
	if err != nil {
		return false, err
	}
	return s.Apply(t)
}

// --------------------------------------------------------------------------
// Background refresh
// --------------------------------------------------------------------------

// Start launches the periodic refresh task. Failed refreshes are retried with a
// bounded exponential backoff, successful ones wait for the next interval.
func (s *Store) Start() {
	if s.config.DisableUpdates || s.config.RefreshInterval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.refreshLoop()
}

func (s *Store) refreshLoop() {
	defer s.wg.Done()

	b := backoff.NewExponentialBackOff()
	if s.config.Backoff.InitialInterval > 0 {
		b.InitialInterval = s.config.Backoff.InitialInterval
	}
	if s.config.Backoff.Multiplier >= 1 {
		b.Multiplier = s.config.Backoff.Multiplier
	}
	b.MaxInterval = s.config.RefreshInterval
	b.MaxElapsedTime = 0
	b.Reset()

	wait := s.config.RefreshInterval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := s.Update(s.ctx); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			wait = b.NextBackOff()
			Logger.Warningf("periodic topology refresh failed, retrying in %s: %v", wait, err)
		} else {
			b.Reset()
			wait = s.config.RefreshInterval
		}
		timer.Reset(wait)
	}
}

// Close stops the background task and waits for it to exit. Pending refreshes are canceled.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.ctxCancel()
		s.wg.Wait()
	})
}
