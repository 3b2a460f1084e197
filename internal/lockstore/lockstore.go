// Package lockstore wraps Redis for the vBrowser lock and usage keys.
// Locks are plain SET-with-TTL: whoever refreshes before expiry keeps the
// session; a crashed host simply stops refreshing and the provider frees
// the slot when the TTL runs out.
package lockstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sorted sets holding minutes of vBrowser use per day. The whole key
// expires at the end of the current UTC day, so each day starts from
// zero.
const (
	uidMinutesKey      = "vBrowserUIDMinutes"
	clientIDMinutesKey = "vBrowserClientIDMinutes"
)

// counterWindow is how long windowed event counters stay queryable.
const counterWindow = 48 * time.Hour

// UsageEntry is one row of a top-usage query.
type UsageEntry struct {
	Member  string  `json:"member"`
	Minutes float64 `json:"minutes"`
}

// Store issues the lock and counter commands the reconciler needs.
type Store struct {
	rdb *redis.Client
}

// New returns a Store over the given client.
func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func lockKey(provider, sessionID string) string {
	return "lock:" + provider + ":" + sessionID
}

func uidLockKey(uid string) string {
	return "vBrowserUIDLock:" + uid
}

// RefreshLock re-asserts the session slot lock for ttl. SET rather than
// EXPIRE so a lapsed key is recreated instead of silently staying gone.
func (s *Store) RefreshLock(ctx context.Context, provider, sessionID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, lockKey(provider, sessionID), "1", ttl).Err()
}

// RefreshUIDLock re-asserts the per-creator assignment lock for ttl.
func (s *Store) RefreshUIDLock(ctx context.Context, uid string, ttl time.Duration) error {
	return s.rdb.Set(ctx, uidLockKey(uid), "1", ttl).Err()
}

// MeterMinutes adds one minute of use to the per-day totals for the
// session creator. Either identifier may be empty; empty ones are
// skipped. Both sets expire at the end of the current UTC day.
func (s *Store) MeterMinutes(ctx context.Context, uid, clientID string, now time.Time) error {
	eod := endOfDay(now)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if uid != "" {
			pipe.ZIncrBy(ctx, uidMinutesKey, 1, uid)
			pipe.ExpireAt(ctx, uidMinutesKey, eod)
		}
		if clientID != "" {
			pipe.ZIncrBy(ctx, clientIDMinutesKey, 1, clientID)
			pipe.ExpireAt(ctx, clientIDMinutesKey, eod)
		}
		return nil
	})
	return err
}

// Count bumps a windowed event counter. The member is the current UTC
// minute, so ZRANGE over the set reconstructs a per-minute series; the
// key stays around for two days.
func (s *Store) Count(ctx context.Context, name string, now time.Time) error {
	member := now.UTC().Format("2006-01-02T15:04")
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZIncrBy(ctx, name, 1, member)
		pipe.ExpireAt(ctx, name, now.Add(counterWindow))
		return nil
	})
	return err
}

// TopUsage returns the n heaviest vBrowser users of the current UTC day
// by uid, highest first.
func (s *Store) TopUsage(ctx context.Context, n int64) ([]UsageEntry, error) {
	if n < 1 {
		n = 1
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, uidMinutesKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]UsageEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, UsageEntry{Member: member, Minutes: z.Score})
	}
	return out, nil
}

// endOfDay returns the first instant of the next UTC day.
func endOfDay(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}
