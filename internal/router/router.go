// Package router wires the ops endpoints onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roomshare/roomd/internal/handler"
)

// RegisterOps registers the operational surface: liveness, shard
// resolution, live counts, the usage leaderboard and the Prometheus
// scrape endpoint. None of these routes require authentication; the
// server is expected to sit behind the deployment's internal network.
func RegisterOps(e *echo.Echo, h *handler.OpsHandler) {
	e.GET("/healthz", handler.Health)
	e.GET("/status", h.Status)
	e.GET("/shard/:roomID", h.ResolveShard)
	e.GET("/usage/vbrowser/top", h.TopUsage)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
