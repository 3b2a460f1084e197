// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. Backing services (MySQL, Redis, AMQP,
// billing, identity) are optional: when their variables are unset the
// features that need them are disabled and the rest of the process runs
// normally.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port for the ops surface

	Shard     int // this instance's shard number, 1-based; 0 when unsharded
	NumShards int // total shard count; 0 when unsharded

	DBUser string
	DBPass string
	DBHost string // empty disables MySQL-backed persistence
	DBPort string
	DBName string

	AMQPUrl string // empty disables queue publishing

	BillingAPIURL string // empty disables subscriber sync
	BillingAPIKey string

	IdentityAPIURL        string // empty disables identity lookups
	IdentityServiceSecret string // HS256 secret for service-to-service tokens

	SaveInterval    time.Duration // persister cadence
	ReleaseInterval time.Duration // session sweep: one full pass per interval
	ReleaseBatches  int           // batches per release interval
	RenewInterval   time.Duration // lock renewal and metering cadence
	ReclaimInterval time.Duration // memory reclaimer cadence
	SubsyncInterval time.Duration // subscriber sync cadence

	VBrowserMaxAge      time.Duration // session lifetime, standard tier
	VBrowserMaxAgeLarge time.Duration // session lifetime, large tier
	VBrowserLockTTL     time.Duration // lock:<provider>:<id> expiry
	VBrowserUIDLockTTL  time.Duration // vBrowserUIDLock:<uid> expiry

	RoomIdleEvictAfter  time.Duration // empty-roster idle window before a session is torn down
	SubsyncResolveBatch int           // emails resolved per identity batch
}

// Load reads the environment and validates the result. Interval and TTL
// relationships are checked here so a bad deployment fails at startup
// instead of silently letting locks lapse between renewals.
func Load() (Config, error) {
	cfg := Config{
		Env:  env("APP_ENV", "dev"),
		Port: env("APP_PORT", "8100"),

		Shard:     envInt("SHARD", 0),
		NumShards: envInt("NUM_SHARDS", 0),

		DBUser: env("DB_USER", "roomd"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: os.Getenv("DB_HOST"),
		DBPort: env("DB_PORT", "3306"),
		DBName: env("DB_NAME", "roomshare"),

		AMQPUrl: os.Getenv("AMQP_URL"),

		BillingAPIURL: os.Getenv("BILLING_API_URL"),
		BillingAPIKey: os.Getenv("BILLING_API_KEY"),

		IdentityAPIURL:        os.Getenv("IDENTITY_API_URL"),
		IdentityServiceSecret: os.Getenv("IDENTITY_SERVICE_SECRET"),

		SaveInterval:    envDur("SAVE_INTERVAL", time.Second),
		ReleaseInterval: envDur("RELEASE_INTERVAL", 5*time.Minute),
		ReleaseBatches:  envInt("RELEASE_BATCHES", 10),
		RenewInterval:   envDur("RENEW_INTERVAL", time.Minute),
		ReclaimInterval: envDur("RECLAIM_INTERVAL", 5*time.Minute),
		SubsyncInterval: envDur("SUBSYNC_INTERVAL", time.Minute),

		VBrowserMaxAge:      envSeconds("VBROWSER_SESSION_SECONDS", 10800),
		VBrowserMaxAgeLarge: envSeconds("VBROWSER_SESSION_SECONDS_LARGE", 86400),
		VBrowserLockTTL:     envSeconds("VBROWSER_LOCK_TTL_SECONDS", 300),
		VBrowserUIDLockTTL:  envSeconds("VBROWSER_UID_LOCK_TTL_SECONDS", 120),

		RoomIdleEvictAfter:  envDur("ROOM_IDLE_EVICT_AFTER", 5*time.Minute),
		SubsyncResolveBatch: envInt("SUBSYNC_RESOLVE_BATCH", 50),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sharded reports whether this instance owns a slice of the keyspace.
func (c Config) Sharded() bool { return c.NumShards > 0 }

func (c Config) validate() error {
	if c.NumShards < 0 || c.Shard < 0 {
		return fmt.Errorf("SHARD and NUM_SHARDS must not be negative")
	}
	if c.NumShards > 0 && (c.Shard < 1 || c.Shard > c.NumShards) {
		return fmt.Errorf("SHARD %d out of range for NUM_SHARDS %d", c.Shard, c.NumShards)
	}
	if c.NumShards == 0 && c.Shard != 0 {
		return fmt.Errorf("SHARD %d set without NUM_SHARDS", c.Shard)
	}
	if c.ReleaseBatches < 1 {
		return fmt.Errorf("RELEASE_BATCHES must be at least 1, got %d", c.ReleaseBatches)
	}
	for name, d := range map[string]time.Duration{
		"SAVE_INTERVAL":    c.SaveInterval,
		"RELEASE_INTERVAL": c.ReleaseInterval,
		"RENEW_INTERVAL":   c.RenewInterval,
		"RECLAIM_INTERVAL": c.ReclaimInterval,
		"SUBSYNC_INTERVAL": c.SubsyncInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	// A renewal period at or above a lock TTL means the lock expires
	// before the next renewal and another host steals the session.
	if c.RenewInterval >= c.VBrowserLockTTL {
		return fmt.Errorf("RENEW_INTERVAL %s must be shorter than VBROWSER_LOCK_TTL_SECONDS %s",
			c.RenewInterval, c.VBrowserLockTTL)
	}
	if c.RenewInterval >= c.VBrowserUIDLockTTL {
		return fmt.Errorf("RENEW_INTERVAL %s must be shorter than VBROWSER_UID_LOCK_TTL_SECONDS %s",
			c.RenewInterval, c.VBrowserUIDLockTTL)
	}
	if c.SubsyncResolveBatch < 1 {
		return fmt.Errorf("SUBSYNC_RESOLVE_BATCH must be at least 1, got %d", c.SubsyncResolveBatch)
	}
	return nil
}

// env retrieves an environment variable, falling back to def when unset
// or empty.
func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// envInt is like env but converts the value to an integer. Unparseable
// values fall back to the default rather than halting: validation of the
// assembled Config decides what is fatal.
func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envDur parses a Go duration string ("90s", "5m") with a fallback.
func envDur(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envSeconds reads an integer second count, matching the *_SECONDS naming
// of the variables it serves.
func envSeconds(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Second
}
