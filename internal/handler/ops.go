// Package handler contains the HTTP handlers for the ops surface. The
// endpoints are read-only views over the live registry and the usage
// counters; rooms themselves are driven by the realtime layer and the
// reconcile loops, not by HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/roomshare/roomd/internal/lockstore"
	"github.com/roomshare/roomd/internal/registry"
	"github.com/roomshare/roomd/internal/shard"
)

// UsageSource serves the vBrowser usage leaderboard. *lockstore.Store
// implements it; it is nil when no Redis is configured.
type UsageSource interface {
	TopUsage(ctx context.Context, n int64) ([]lockstore.UsageEntry, error)
}

// SubscriberCounter reports how many subscriber rows the durable store
// holds. *repository.SubscriberRepo implements it; nil without a
// database.
type SubscriberCounter interface {
	Count(ctx context.Context) (int, error)
}

// OpsHandler bundles the read-only collaborators behind the ops routes.
type OpsHandler struct {
	Registry *registry.Registry
	Resolver *shard.Resolver
	Shard    int
	Usage    UsageSource
	Subs     SubscriberCounter
}

// NewOpsHandler constructs an OpsHandler. Usage and subs may be nil when
// the backing service is not configured; the routes degrade instead of
// panicking.
func NewOpsHandler(reg *registry.Registry, res *shard.Resolver, shardNum int, usage UsageSource, subs SubscriberCounter) *OpsHandler {
	if reg == nil || res == nil {
		panic("nil registry or resolver passed to NewOpsHandler")
	}
	return &OpsHandler{
		Registry: reg,
		Resolver: res,
		Shard:    shardNum,
		Usage:    usage,
		Subs:     subs,
	}
}

// Status reports the process's shard assignment and live counts.
func (h *OpsHandler) Status(c echo.Context) error {
	body := echo.Map{
		"shard":      h.Shard,
		"num_shards": h.Resolver.NumShards(),
		"rooms":      h.Registry.Len(),
		"vbrowsers":  h.Registry.VBrowserCount(),
	}
	if h.Subs != nil {
		n, err := h.Subs.Count(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"error":   "database_error",
				"message": err.Error(),
			})
		}
		body["subscribers"] = n
	}
	return c.JSON(http.StatusOK, body)
}

// ResolveShard reports which shard owns a room id, so a front tier can
// redirect the client to the right instance. Unsharded deployments
// answer 0.
func (h *OpsHandler) ResolveShard(c echo.Context) error {
	roomID := c.Param("roomID")
	return c.JSON(http.StatusOK, echo.Map{
		"room_id": roomID,
		"shard":   h.Resolver.Resolve(roomID),
	})
}

// TopUsage lists the heaviest vBrowser users of the current UTC day,
// straight from the metering sorted set.
func (h *OpsHandler) TopUsage(c echo.Context) error {
	if h.Usage == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error":   "usage_unavailable",
			"message": "no redis configured",
		})
	}

	n, _ := strconv.Atoi(c.QueryParam("n"))
	if n < 1 {
		n = 10
	}
	if n > 100 {
		n = 100
	}

	entries, err := h.Usage.TopUsage(c.Request().Context(), int64(n))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "usage_error",
			"message": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data": entries,
		"n":    n,
	})
}
