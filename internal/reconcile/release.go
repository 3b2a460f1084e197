package reconcile

import (
	"context"
	"time"

	"github.com/roomshare/roomd/internal/model"
	"github.com/roomshare/roomd/internal/queue"
	"github.com/roomshare/roomd/internal/shard"
)

// Windowed redis counters bumped on every termination, alongside the
// prometheus counters. Ops dashboards read these directly.
const (
	counterTerminateTimeout = "vBrowserTerminateTimeout"
	counterTerminateEmpty   = "vBrowserTerminateEmpty"
)

// RunReleaseOnce sweeps one batch of rooms for sessions that are over
// their time limit, about to be, or running in an abandoned room. The
// batch cursor rotates so that ReleaseBatches consecutive ticks visit
// every room exactly once.
func (s *Scheduler) RunReleaseOnce(ctx context.Context) {
	batches := s.cfg.ReleaseBatches
	cursor := s.batchCursor
	s.batchCursor = (s.batchCursor + 1) % batches

	now := s.clk.Now()
	for _, room := range s.reg.Snapshot() {
		if int(shard.BatchHash(room.ID))%batches != cursor {
			continue
		}
		snap := room.VBrowserSnapshot()
		if snap == nil {
			continue
		}

		maxAge := snap.MaxDuration(s.cfg.VBrowserMaxAge, s.cfg.VBrowserMaxAgeLarge)
		ttl := maxAge - now.Sub(snap.AssignTime)

		switch {
		case ttl <= s.cfg.ReleaseInterval:
			// Will expire before the next visit; stop it now and tell
			// the room why.
			s.terminate(ctx, room, queue.StopReasonTimeout)
		case room.Empty() && now.Sub(room.LastUpdate()) > s.cfg.EmptyIdleAfter:
			s.terminate(ctx, room, queue.StopReasonEmpty)
		case ttl <= 2*s.cfg.ReleaseInterval:
			room.AddChatMessage(nil, model.ChatMessage{
				System: true,
				Cmd:    model.CmdVBrowserAlmostTimeout,
			}, now)
			s.metrics.VBrowserAlmostTimeouts.Inc()
		}
	}
}

// terminate clears the room's session, requests provider teardown and
// records the termination. Failures to publish or count are logged; the
// session stays cleared regardless, since the lock renewals also stop
// and the provider frees the slot on its own.
func (s *Scheduler) terminate(ctx context.Context, room *model.Room, reason string) {
	now := s.clk.Now()
	sess := room.StopVBrowser(now)
	if sess == nil {
		return
	}
	if reason == queue.StopReasonTimeout {
		room.AddChatMessage(nil, model.ChatMessage{
			System: true,
			Cmd:    model.CmdVBrowserTimeout,
		}, now)
	}
	s.logger.Info("vbrowser.released", "room", room.ID, "session", sess.ID, "reason", reason)
	s.metrics.VBrowserTerminations.WithLabelValues(reason).Inc()

	if s.stopPub != nil {
		ev := queue.VBrowserStopEvent{
			RoomID:    room.ID,
			SessionID: sess.ID,
			Provider:  sess.Provider,
			Large:     sess.Large,
			Reason:    reason,
			StoppedAt: now.UTC().Format(time.RFC3339),
		}
		if err := s.stopPub.PublishStop(ctx, ev); err != nil {
			s.logger.Warn("vbrowser.release.failed", "room", room.ID, "session", sess.ID, "error", err)
		}
	}
	if s.locks != nil {
		name := counterTerminateTimeout
		if reason == queue.StopReasonEmpty {
			name = counterTerminateEmpty
		}
		if err := s.locks.Count(ctx, name, now); err != nil {
			s.logger.Warn("vbrowser.counter.failed", "counter", name, "error", err)
		}
	}
}
