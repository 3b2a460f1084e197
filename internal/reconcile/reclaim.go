package reconcile

import (
	"context"

	"github.com/roomshare/roomd/internal/queue"
	"github.com/roomshare/roomd/internal/registry"
)

// RunReclaimOnce drops in-memory rooms that no longer exist durably and
// have nobody in them. Rooms with people are always pinned, whatever the
// durable table says; the permanent default room is never dropped. When
// the id fetch fails the pass is skipped outright, because evicting
// against a partial id set would drop live rooms.
func (s *Scheduler) RunReclaimOnce(ctx context.Context) {
	durable, err := s.store.ListIDs(ctx, s.partitionChars())
	if err != nil {
		s.logger.Warn("reconcile.reclaim.skipped", "error", err)
		return
	}

	reclaimed := 0
	for _, room := range s.reg.Snapshot() {
		if room.ID == registry.DefaultRoomID {
			continue
		}
		if !room.Empty() || durable[room.ID] {
			continue
		}
		// A session may still be attached to an abandoned room; release
		// it so the provider slot is freed before the room is forgotten.
		if room.VBrowserSnapshot() != nil {
			s.terminate(ctx, room, queue.StopReasonEmpty)
		}
		s.reg.Remove(room.ID)
		reclaimed++
		s.metrics.RoomsReclaimed.Inc()
	}
	if reclaimed > 0 {
		s.logger.Info("reconcile.rooms.reclaimed", "count", reclaimed)
	}
	s.metrics.RoomsInMemory.Set(float64(s.reg.Len()))
}
