package subsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"github.com/roomshare/roomd/internal/billing"
	"github.com/roomshare/roomd/internal/clock"
	"github.com/roomshare/roomd/internal/identity"
	"github.com/roomshare/roomd/internal/metrics"
	"github.com/roomshare/roomd/internal/model"
)

type fakeBilling struct {
	subs      []billing.Subscription
	customers []billing.Customer
	subsErr   error
	custErr   error
}

func (f *fakeBilling) AllActiveSubscriptions(ctx context.Context) ([]billing.Subscription, error) {
	return f.subs, f.subsErr
}

func (f *fakeBilling) AllCustomers(ctx context.Context) ([]billing.Customer, error) {
	return f.customers, f.custErr
}

type fakeIdentity struct {
	mu            sync.Mutex
	uids          map[string]string
	errs          map[string]error
	current       int
	maxConcurrent int
}

func (f *fakeIdentity) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	f.mu.Lock()
	f.current++
	if f.current > f.maxConcurrent {
		f.maxConcurrent = f.current
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.current--
		f.mu.Unlock()
	}()
	if err := f.errs[email]; err != nil {
		return nil, err
	}
	uid, ok := f.uids[email]
	if !ok {
		return nil, nil
	}
	return &identity.User{UID: uid, Email: email}, nil
}

func (f *fakeIdentity) ValidateToken(ctx context.Context, uid, token string) (*identity.DecodedToken, error) {
	return nil, nil
}

func (f *fakeIdentity) DeleteUser(ctx context.Context, uid string) error { return nil }

type fakeStore struct {
	mu          sync.Mutex
	err         error
	calls       int
	lastRecords []model.SubscriberRecord
	lastOwners  []string
}

func (f *fakeStore) ReplaceSubscribers(ctx context.Context, records []model.SubscriberRecord, owners []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls++
	f.lastRecords = records
	f.lastOwners = owners
	return nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestSyncer(b billing.Provider, id identity.Provider, store Store, clk clock.Clock) *Syncer {
	return New(b, id, store, clk, pslog.NoopLogger(), metrics.NewUnregistered(), Config{
		Interval:     time.Minute,
		ResolveBatch: 2,
	})
}

func threeSubscribers() (*fakeBilling, *fakeIdentity) {
	b := &fakeBilling{
		subs: []billing.Subscription{
			{ID: "sub_1", CustomerID: "cus_1", Status: "active"},
			{ID: "sub_2", CustomerID: "cus_2", Status: "active"},
			{ID: "sub_3", CustomerID: "cus_3", Status: "trialing"},
		},
		customers: []billing.Customer{
			{ID: "cus_1", Email: "a@example.com"},
			{ID: "cus_2", Email: "b@example.com"},
			{ID: "cus_3", Email: "c@example.com"},
		},
	}
	id := &fakeIdentity{uids: map[string]string{
		"a@example.com": "uid-a",
		"b@example.com": "uid-b",
		"c@example.com": "uid-c",
	}}
	return b, id
}

func TestSyncResolvesAndApplies(t *testing.T) {
	b, id := threeSubscribers()
	delete(id.uids, "c@example.com") // no account for the third email
	store := &fakeStore{}
	s := newTestSyncer(b, id, store, clock.Real{})

	require.NoError(t, s.RunSyncOnce(context.Background()))
	require.Equal(t, 1, store.callCount())

	require.Len(t, store.lastRecords, 2)
	assert.Equal(t, model.SubscriberRecord{
		CustomerID: "cus_1", Email: "a@example.com", Status: "active", UID: "uid-a",
	}, store.lastRecords[0])
	assert.Equal(t, "uid-b", store.lastRecords[1].UID)
	assert.Equal(t, []string{"uid-a", "uid-b"}, store.lastOwners)
}

func TestSyncDigestGatesSecondPass(t *testing.T) {
	b, id := threeSubscribers()
	store := &fakeStore{}
	s := newTestSyncer(b, id, store, clock.Real{})

	require.NoError(t, s.RunSyncOnce(context.Background()))
	require.NoError(t, s.RunSyncOnce(context.Background()))
	assert.Equal(t, 1, store.callCount(), "unchanged data must not be rewritten")
}

func TestSyncReappliesAfterMembershipChange(t *testing.T) {
	b, id := threeSubscribers()
	store := &fakeStore{}
	s := newTestSyncer(b, id, store, clock.Real{})

	require.NoError(t, s.RunSyncOnce(context.Background()))
	b.subs = b.subs[:2]
	require.NoError(t, s.RunSyncOnce(context.Background()))

	assert.Equal(t, 2, store.callCount())
	assert.Len(t, store.lastRecords, 2)
}

func TestSyncOrderChangeReapplies(t *testing.T) {
	b, id := threeSubscribers()
	store := &fakeStore{}
	s := newTestSyncer(b, id, store, clock.Real{})

	require.NoError(t, s.RunSyncOnce(context.Background()))
	b.subs[0], b.subs[2] = b.subs[2], b.subs[0]
	require.NoError(t, s.RunSyncOnce(context.Background()))

	assert.Equal(t, 2, store.callCount(), "digest is order-sensitive")
}

func TestSyncDuplicateUIDsDeduplicatedInOwners(t *testing.T) {
	b, id := threeSubscribers()
	// Two customers behind the same account.
	id.uids["b@example.com"] = "uid-a"
	store := &fakeStore{}
	s := newTestSyncer(b, id, store, clock.Real{})

	require.NoError(t, s.RunSyncOnce(context.Background()))
	assert.Len(t, store.lastRecords, 3)
	assert.Equal(t, []string{"uid-a", "uid-c"}, store.lastOwners)
}

func TestSyncStoreFailureIsFatal(t *testing.T) {
	b, id := threeSubscribers()
	store := &fakeStore{err: errors.New("deadlock")}
	s := newTestSyncer(b, id, store, clock.Real{})

	err := s.RunSyncOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestSyncBillingFailureIsTransient(t *testing.T) {
	b, id := threeSubscribers()
	b.custErr = errors.New("upstream 500")
	store := &fakeStore{}
	s := newTestSyncer(b, id, store, clock.Real{})

	err := s.RunSyncOnce(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFatal)
	assert.Equal(t, 0, store.callCount())
}

func TestSyncResolveErrorSkipsRecord(t *testing.T) {
	b, id := threeSubscribers()
	id.errs = map[string]error{"b@example.com": errors.New("identity timeout")}
	store := &fakeStore{}
	s := newTestSyncer(b, id, store, clock.Real{})

	require.NoError(t, s.RunSyncOnce(context.Background()))
	require.Len(t, store.lastRecords, 2)
	assert.Equal(t, "uid-a", store.lastRecords[0].UID)
	assert.Equal(t, "uid-c", store.lastRecords[1].UID)
}

func TestSyncResolveHonorsBatchSize(t *testing.T) {
	subs := make([]billing.Subscription, 7)
	customers := make([]billing.Customer, 7)
	uids := map[string]string{}
	for i := range subs {
		c := string(rune('a' + i))
		subs[i] = billing.Subscription{ID: "sub_" + c, CustomerID: "cus_" + c, Status: "active"}
		customers[i] = billing.Customer{ID: "cus_" + c, Email: c + "@example.com"}
		uids[c+"@example.com"] = "uid-" + c
	}
	b := &fakeBilling{subs: subs, customers: customers}
	id := &fakeIdentity{uids: uids}
	store := &fakeStore{}
	s := newTestSyncer(b, id, store, clock.Real{})

	require.NoError(t, s.RunSyncOnce(context.Background()))
	require.Len(t, store.lastRecords, 7)
	assert.LessOrEqual(t, id.maxConcurrent, 2, "at most ResolveBatch lookups in flight")
}

func TestSyncLoopFatalStopsLoop(t *testing.T) {
	b, id := threeSubscribers()
	store := &fakeStore{err: errors.New("deadlock")}
	clk := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestSyncer(b, id, store, clk)

	s.Start()
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(time.Minute)

	select {
	case err := <-s.Fatal():
		assert.ErrorIs(t, err, ErrFatal)
	case <-time.After(time.Second):
		t.Fatal("expected fatal error from loop")
	}
	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("loop should exit after fatal")
	}
}

func TestSyncLoopStops(t *testing.T) {
	b, id := threeSubscribers()
	store := &fakeStore{}
	clk := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestSyncer(b, id, store, clk)

	s.Start()
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return store.callCount() == 1 }, time.Second, time.Millisecond)

	s.Stop()
}
