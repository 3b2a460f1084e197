package reconcile

import (
	"context"

	"github.com/roomshare/roomd/internal/registry"
)

// LoadRooms hydrates the registry from the durable room table, one row
// per room owned by this shard. Run once at startup before the loops
// start; nothing else mutates the registry yet, so field writes on the
// fresh rooms need no lock discipline.
//
// A query failure is deliberately non-fatal: the server comes up with an
// empty registry and serves rooms created from then on.
func (s *Scheduler) LoadRooms(ctx context.Context) {
	if s.store != nil {
		records, err := s.store.ListByLeadingChars(ctx, s.partitionChars())
		if err != nil {
			s.logger.Error("reconcile.load.failed", "error", err)
		}
		loaded := 0
		for _, rec := range records {
			room := s.reg.GetOrCreate(rec.ID, rec.CreationTime)
			room.Owner = rec.Owner
			room.Vanity = rec.Vanity
			room.PasswordHash = rec.PasswordHash
			room.IsSubRoom = rec.IsSubRoom
			room.CreationTime = rec.CreationTime
			if err := room.ApplyState(rec.Data); err != nil {
				s.logger.Warn("reconcile.load.bad_state", "room", rec.ID, "error", err)
			}
			room.LastUpdateTime = rec.LastUpdateTime
			loaded++
		}
		s.logger.Info("reconcile.rooms.loaded", "count", loaded, "shard", s.shardNum)
	}

	// The permanent room exists on whichever shard owns its leading
	// character (every instance when unsharded).
	if s.ownsRoom(registry.DefaultRoomID) {
		s.reg.GetOrCreate(registry.DefaultRoomID, s.clk.Now())
	}
	s.metrics.RoomsInMemory.Set(float64(s.reg.Len()))
}

// ownsRoom reports whether this instance's shard is responsible for id.
func (s *Scheduler) ownsRoom(id string) bool {
	n := s.resolver.Resolve(id)
	return n == 0 || n == s.shardNum
}
