// Package subsync mirrors the billing provider's active subscriptions
// into the subscriber table and keeps the is_sub_room flag on rooms in
// step with it. The mirror is replaced wholesale on every change; a
// content digest of the resolved uid sequence gates the writes so
// steady-state passes cost two billing reads and nothing else.
package subsync

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/roomshare/roomd/internal/billing"
	"github.com/roomshare/roomd/internal/clock"
	"github.com/roomshare/roomd/internal/identity"
	"github.com/roomshare/roomd/internal/metrics"
	"github.com/roomshare/roomd/internal/model"
)

// ErrFatal marks reconciliation failures that leave the subscriber
// mirror in an unknown state. The supervisor exits the process on it;
// restarting from scratch is safer than running with a possibly
// half-applied mirror.
var ErrFatal = errors.New("subscriber sync fatal")

// Store commits a resolved subscriber set atomically: replace every
// subscriber row and repoint the is_sub_room flags in one transaction.
type Store interface {
	ReplaceSubscribers(ctx context.Context, records []model.SubscriberRecord, owners []string) error
}

// Config carries the sync cadence and identity batch size.
type Config struct {
	Interval     time.Duration
	ResolveBatch int
}

// Syncer runs the reconciliation pass.
type Syncer struct {
	billing  billing.Provider
	identity identity.Provider
	store    Store
	clk      clock.Clock
	logger   pslog.Logger
	metrics  *metrics.Metrics
	cfg      Config

	lastDigest [sha256.Size]byte

	stop   chan struct{}
	done   chan struct{}
	fatalc chan error
}

// New assembles a Syncer. All dependencies must be non-nil; the caller
// decides whether to construct one at all when billing or the database
// is not configured.
func New(b billing.Provider, id identity.Provider, store Store, clk clock.Clock, logger pslog.Logger, m *metrics.Metrics, cfg Config) *Syncer {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Syncer{
		billing:  b,
		identity: id,
		store:    store,
		clk:      clk,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		fatalc:   make(chan error, 1),
	}
}

// Start launches the sync loop. The first pass runs one interval after
// start, not immediately: room state loads first, billing reads can wait.
func (s *Syncer) Start() {
	go s.loop()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Syncer) Stop() {
	close(s.stop)
	<-s.done
}

// Fatal delivers the error that should take the process down. At most
// one is ever sent.
func (s *Syncer) Fatal() <-chan error {
	return s.fatalc
}

func (s *Syncer) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.clk.After(s.cfg.Interval):
		}
		err := s.RunSyncOnce(context.Background())
		if err == nil {
			continue
		}
		if errors.Is(err, ErrFatal) {
			s.fatalc <- err
			return
		}
		s.logger.Warn("subsync.pass.failed", "error", err)
		s.metrics.SubsyncPasses.WithLabelValues(metrics.ResultError).Inc()
	}
}

// RunSyncOnce executes a single reconciliation pass. Transient upstream
// failures return ordinary errors; only a failed mirror replacement is
// wrapped with ErrFatal.
func (s *Syncer) RunSyncOnce(ctx context.Context) error {
	subs, customers, err := s.fetchBilling(ctx)
	if err != nil {
		return fmt.Errorf("fetch billing: %w", err)
	}

	emailByCustomer := make(map[string]string, len(customers))
	for _, c := range customers {
		if c.Email != "" {
			emailByCustomer[c.ID] = c.Email
		}
	}

	records := s.resolve(ctx, subs, emailByCustomer)
	digest := digestOf(records)
	if digest == s.lastDigest {
		s.metrics.SubsyncPasses.WithLabelValues(metrics.ResultNoop).Inc()
		s.logger.Debug("subsync.noop", "subscribers", len(records))
		return nil
	}

	owners := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if !seen[r.UID] {
			seen[r.UID] = true
			owners = append(owners, r.UID)
		}
	}
	if err := s.store.ReplaceSubscribers(ctx, records, owners); err != nil {
		return fmt.Errorf("%w: replace subscribers: %w", ErrFatal, err)
	}
	s.lastDigest = digest
	s.metrics.SubsyncPasses.WithLabelValues(metrics.ResultApplied).Inc()
	s.logger.Info("subsync.applied", "subscribers", len(records), "owners", len(owners))
	return nil
}

// fetchBilling pulls subscriptions and customers concurrently. Either
// failing fails the pass; a half-fetched view must never be applied.
func (s *Syncer) fetchBilling(ctx context.Context) ([]billing.Subscription, []billing.Customer, error) {
	var (
		wg        sync.WaitGroup
		subs      []billing.Subscription
		customers []billing.Customer
		subErr    error
		custErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		subs, subErr = s.billing.AllActiveSubscriptions(ctx)
	}()
	go func() {
		defer wg.Done()
		customers, custErr = s.billing.AllCustomers(ctx)
	}()
	wg.Wait()
	if subErr != nil {
		return nil, nil, fmt.Errorf("subscriptions: %w", subErr)
	}
	if custErr != nil {
		return nil, nil, fmt.Errorf("customers: %w", custErr)
	}
	return subs, customers, nil
}

// resolve maps each subscription to an account uid via its customer's
// email. Resolution runs concurrently within a batch and sequentially
// across batches so the account service sees at most ResolveBatch
// in-flight lookups. Subscriptions whose email has no account, or whose
// lookup fails, drop out of the result; provider order is kept for the
// rest.
func (s *Syncer) resolve(ctx context.Context, subs []billing.Subscription, emailByCustomer map[string]string) []model.SubscriberRecord {
	type pending struct {
		sub   billing.Subscription
		email string
	}
	work := make([]pending, 0, len(subs))
	for _, sub := range subs {
		email, ok := emailByCustomer[sub.CustomerID]
		if !ok {
			s.logger.Debug("subsync.customer.no_email", "customer", sub.CustomerID)
			continue
		}
		work = append(work, pending{sub: sub, email: email})
	}

	uids := make([]string, len(work))
	batch := s.cfg.ResolveBatch
	if batch < 1 {
		batch = 1
	}
	for start := 0; start < len(work); start += batch {
		end := start + batch
		if end > len(work) {
			end = len(work)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u, err := s.identity.GetUserByEmail(ctx, work[i].email)
				if err != nil {
					s.logger.Warn("subsync.resolve.failed", "email", work[i].email, "error", err)
					return
				}
				if u != nil {
					uids[i] = u.UID
				}
			}(i)
		}
		wg.Wait()
	}

	records := make([]model.SubscriberRecord, 0, len(work))
	for i, w := range work {
		if uids[i] == "" {
			continue
		}
		records = append(records, model.SubscriberRecord{
			CustomerID: w.sub.CustomerID,
			Email:      w.email,
			Status:     w.sub.Status,
			UID:        uids[i],
		})
	}
	return records
}

// digestOf hashes the uid sequence in order. Order sensitivity is
// intentional: the provider returns a stable ordering, and a reorder is
// as worth persisting as a membership change.
func digestOf(records []model.SubscriberRecord) [sha256.Size]byte {
	h := sha256.New()
	for _, r := range records {
		h.Write([]byte(r.UID))
		h.Write([]byte{'\n'})
	}
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
