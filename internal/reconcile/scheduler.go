// Package reconcile houses the periodic loops that keep in-memory rooms,
// durable rows, session locks and the session provider fleet in
// agreement. Every loop follows the same shape: tick on a clock, sweep
// some slice of the registry, isolate per-room failures, log and move
// on. Loop bodies are exported as Run*Once methods so tests drive them
// directly without goroutines.
package reconcile

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/roomshare/roomd/internal/clock"
	"github.com/roomshare/roomd/internal/metrics"
	"github.com/roomshare/roomd/internal/queue"
	"github.com/roomshare/roomd/internal/registry"
	"github.com/roomshare/roomd/internal/repository"
	"github.com/roomshare/roomd/internal/shard"
)

// RoomStore is the durable side of the reconciler: hydrate at boot,
// refresh active rooms, diff the id set. *repository.RoomRepo implements
// it; tests substitute a fake.
type RoomStore interface {
	ListByLeadingChars(ctx context.Context, chars []string) ([]repository.RoomRecord, error)
	ListIDs(ctx context.Context, chars []string) (map[string]bool, error)
	UpsertState(ctx context.Context, id string, creation, lastUpdate time.Time, data []byte) error
}

// LockStore renews session locks and meters usage. *lockstore.Store
// implements it.
type LockStore interface {
	RefreshLock(ctx context.Context, provider, sessionID string, ttl time.Duration) error
	RefreshUIDLock(ctx context.Context, uid string, ttl time.Duration) error
	MeterMinutes(ctx context.Context, uid, clientID string, now time.Time) error
	Count(ctx context.Context, name string, now time.Time) error
}

// StopPublisher signals the session provider to tear a vBrowser down.
type StopPublisher interface {
	PublishStop(ctx context.Context, ev queue.VBrowserStopEvent) error
}

// Config carries the loop cadences and session limits.
type Config struct {
	SaveInterval    time.Duration
	ReleaseInterval time.Duration
	ReleaseBatches  int
	RenewInterval   time.Duration
	ReclaimInterval time.Duration

	VBrowserMaxAge      time.Duration
	VBrowserMaxAgeLarge time.Duration
	LockTTL             time.Duration
	UIDLockTTL          time.Duration
	EmptyIdleAfter      time.Duration
}

// Deps are the collaborators a Scheduler works against. Store, Locks and
// StopPub may be nil; the loops needing them stay off.
type Deps struct {
	Registry *registry.Registry
	Resolver *shard.Resolver
	Shard    int
	Store    RoomStore
	Locks    LockStore
	StopPub  StopPublisher
	Clock    clock.Clock
	Logger   pslog.Logger
	Metrics  *metrics.Metrics
}

// Scheduler runs the persist, release, renew and reclaim loops.
type Scheduler struct {
	reg      *registry.Registry
	resolver *shard.Resolver
	shardNum int
	store    RoomStore
	locks    LockStore
	stopPub  StopPublisher
	clk      clock.Clock
	logger   pslog.Logger
	metrics  *metrics.Metrics
	cfg      Config

	batchCursor int

	stop chan struct{}
	wg   sync.WaitGroup
}

// New assembles a Scheduler. Nothing runs until Start.
func New(deps Deps, cfg Config) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Scheduler{
		reg:      deps.Registry,
		resolver: deps.Resolver,
		shardNum: deps.Shard,
		store:    deps.Store,
		locks:    deps.Locks,
		stopPub:  deps.StopPub,
		clk:      deps.Clock,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
	}
}

// Start launches every loop whose dependencies are present. Disabled
// loops are logged here, once, not per tick.
func (s *Scheduler) Start() {
	s.stop = make(chan struct{})

	if s.store != nil {
		s.spawn(s.cfg.SaveInterval, s.RunSaveOnce)
		s.spawn(s.cfg.ReclaimInterval, s.RunReclaimOnce)
	} else {
		s.logger.Info("reconcile.persistence.disabled", "reason", "no database configured")
	}

	s.spawn(s.releaseTick(), s.RunReleaseOnce)

	if s.locks != nil {
		s.spawn(s.cfg.RenewInterval, s.RunRenewOnce)
	} else {
		s.logger.Info("reconcile.renewal.disabled", "reason", "no redis configured")
	}
}

// Stop halts all loops and waits for in-flight ticks.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// releaseTick is the sweep cadence: one batch per tick, every room
// visited exactly once per full ReleaseInterval.
func (s *Scheduler) releaseTick() time.Duration {
	return s.cfg.ReleaseInterval / time.Duration(s.cfg.ReleaseBatches)
}

func (s *Scheduler) spawn(interval time.Duration, tick func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			case <-s.clk.After(interval):
			}
			tick(context.Background())
		}
	}()
}

// partitionChars is this shard's slice of the id keyspace, nil when
// unsharded.
func (s *Scheduler) partitionChars() []string {
	if s.resolver.NumShards() == 0 {
		return nil
	}
	return s.resolver.PartitionChars(s.shardNum)
}
