package reconcile

import "context"

// RunRenewOnce re-asserts the locks of every active session and meters a
// minute of use against its creator. The whole registry is visited every
// tick, never batched: a missed renewal is how sessions get stolen.
// Per-room redis failures are logged and the sweep continues.
func (s *Scheduler) RunRenewOnce(ctx context.Context) {
	now := s.clk.Now()
	for _, room := range s.reg.Snapshot() {
		sess := room.VBrowserSnapshot()
		if sess == nil {
			continue
		}
		if err := s.locks.RefreshLock(ctx, sess.Provider, sess.ID, s.cfg.LockTTL); err != nil {
			s.logger.Warn("vbrowser.renew.failed", "room", room.ID, "session", sess.ID, "error", err)
			s.metrics.RenewErrors.Inc()
			continue
		}
		if sess.CreatorUID != "" {
			if err := s.locks.RefreshUIDLock(ctx, sess.CreatorUID, s.cfg.UIDLockTTL); err != nil {
				s.logger.Warn("vbrowser.renew.failed", "room", room.ID, "session", sess.ID, "error", err)
				s.metrics.RenewErrors.Inc()
				continue
			}
		}
		s.metrics.LocksRenewed.Inc()

		if sess.CreatorUID == "" && sess.CreatorClientID == "" {
			continue
		}
		if err := s.locks.MeterMinutes(ctx, sess.CreatorUID, sess.CreatorClientID, now); err != nil {
			s.logger.Warn("vbrowser.meter.failed", "room", room.ID, "session", sess.ID, "error", err)
		}
	}
}
