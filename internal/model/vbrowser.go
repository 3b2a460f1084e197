package model

import "time"

// VBrowserSession is an ephemeral remote-browser compute unit assigned to
// a room. The session itself runs on an external backend; the room only
// tracks the reference it must keep alive and eventually tear down.
//
// Fields:
//
//	ID              – session identifier issued by the backend.
//	Provider        – name of the backend that owns the session.
//	Large           – capacity tier; large sessions get a longer time limit.
//	AssignTime      – when the session was attached to the room. Set exactly
//	                  once, at assignment.
//	CreatorUID      – identity uid of the user who requested the session.
//	CreatorClientID – anonymous client identifier when no identity is known.
//	Controller      – participant currently holding playback control.
type VBrowserSession struct {
	ID              string    `json:"id"`
	Provider        string    `json:"provider"`
	Large           bool      `json:"large,omitempty"`
	AssignTime      time.Time `json:"assignTime"`
	CreatorUID      string    `json:"creatorUID,omitempty"`
	CreatorClientID string    `json:"creatorClientID,omitempty"`
	Controller      string    `json:"controller,omitempty"`
}

// MaxDuration returns the session's time allotment given the per-tier
// limits.
func (s *VBrowserSession) MaxDuration(standard, large time.Duration) time.Duration {
	if s.Large {
		return large
	}
	return standard
}
