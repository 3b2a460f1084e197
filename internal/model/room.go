package model

import (
	"errors"
	"sync"
	"time"

	"github.com/roomshare/roomd/internal/utils"
)

// ErrSessionActive is returned when a vBrowser session is assigned to a
// room that already holds one.
var ErrSessionActive = errors.New("room already has an active vbrowser session")

// Participant is one connected client in a room's roster.
type Participant struct {
	ID          string `json:"id"`
	ClientID    string `json:"clientId,omitempty"`
	UID         string `json:"uid,omitempty"`
	IsVideoChat bool   `json:"isVideoChat,omitempty"`
}

// Room is the in-memory unit of state for one watch-together room. It is
// owned exclusively by the registry of the shard that its id resolves to
// and is never shared across shards.
//
// The HTTP/realtime layers mutate rooms on request paths; the reconcile
// loops mutate them on timers. A per-room mutex serializes those writers.
//
// Fields:
//
//	ID             – unique id over the partitioned keyspace.
//	Roster         – ordered list of connected participants.
//	Video, VideoTS – current media reference and playback position.
//	Owner          – identity uid of the owning (persisting) user.
//	Creator        – identity uid of whoever created the room.
//	Vanity         – optional vanity alias.
//	PasswordHash   – optional bcrypt hash guarding entry.
//	IsSubRoom      – owner had an active subscription at the last
//	                 reconciliation pass.
//	VBrowser       – at most one active remote-browser session.
type Room struct {
	mu sync.Mutex

	ID             string
	Roster         []Participant
	Video          string
	VideoTS        float64
	Paused         bool
	Subtitle       string
	Owner          string
	Creator        string
	Vanity         string
	PasswordHash   string
	IsSubRoom      bool
	VBrowser       *VBrowserSession
	Chat           []ChatMessage
	CreationTime   time.Time
	LastUpdateTime time.Time

	emitter ChatEmitter
}

// NewRoom returns an empty room created at now. The emitter may be nil
// when no realtime transport is attached (tests, tooling).
func NewRoom(id string, now time.Time, emitter ChatEmitter) *Room {
	return &Room{
		ID:             id,
		CreationTime:   now,
		LastUpdateTime: now,
		emitter:        emitter,
	}
}

// Touch bumps the room's last-update timestamp.
func (r *Room) Touch(now time.Time) {
	r.mu.Lock()
	r.LastUpdateTime = now
	r.mu.Unlock()
}

// LastUpdate returns the last-update timestamp.
func (r *Room) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.LastUpdateTime
}

// AddParticipant appends p to the roster and touches the room.
func (r *Room) AddParticipant(p Participant, now time.Time) {
	r.mu.Lock()
	r.Roster = append(r.Roster, p)
	r.LastUpdateTime = now
	r.mu.Unlock()
}

// RemoveParticipant removes the participant with the given id, preserving
// roster order. Removing an unknown id is a no-op.
func (r *Room) RemoveParticipant(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.Roster {
		if p.ID == id {
			r.Roster = append(r.Roster[:i], r.Roster[i+1:]...)
			r.LastUpdateTime = now
			return
		}
	}
}

// RosterCount returns the number of connected participants.
func (r *Room) RosterCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Roster)
}

// Empty reports whether nobody is connected.
func (r *Room) Empty() bool {
	return r.RosterCount() == 0
}

// AddChatMessage stamps msg with the sender, current time and playback
// position, appends it to the bounded chat buffer and forwards it to the
// chat emitter. A nil sender marks a system message; system messages do
// not count as activity, so an abandoned room still reads as idle after
// a scheduler warning.
func (r *Room) AddChatMessage(sender *Participant, msg ChatMessage, now time.Time) {
	r.mu.Lock()
	if sender != nil {
		msg.ID = sender.ID
		r.LastUpdateTime = now
	}
	msg.Timestamp = now
	msg.VideoTS = r.VideoTS
	r.Chat = append(r.Chat, msg)
	if len(r.Chat) > chatBufferCap {
		r.Chat = r.Chat[len(r.Chat)-chatBufferCap:]
	}
	emitter := r.emitter
	r.mu.Unlock()

	if emitter != nil {
		emitter.EmitChat(r.ID, msg)
	}
}

// AssignVBrowser attaches a session to the room. AssignTime is stamped
// here, exactly once. Returns ErrSessionActive when a session is already
// attached.
func (r *Room) AssignVBrowser(s *VBrowserSession, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.VBrowser != nil {
		return ErrSessionActive
	}
	if s.AssignTime.IsZero() {
		s.AssignTime = now
	}
	r.VBrowser = s
	r.LastUpdateTime = now
	return nil
}

// StopVBrowser clears the session reference and returns the session that
// was active, or nil when there was none. The caller signals the backend
// teardown; the room only forgets the reference.
func (r *Room) StopVBrowser(now time.Time) *VBrowserSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.VBrowser
	if s == nil {
		return nil
	}
	r.VBrowser = nil
	r.LastUpdateTime = now
	return s
}

// VBrowserSnapshot returns a copy of the active session, or nil. The copy
// keeps the renew and release loops from racing the assignment path.
func (r *Room) VBrowserSnapshot() *VBrowserSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.VBrowser == nil {
		return nil
	}
	s := *r.VBrowser
	return &s
}

// SetPassword bcrypt-hashes plain into the room. An empty plain clears
// the password.
func (r *Room) SetPassword(plain string, cost int) error {
	if plain == "" {
		r.mu.Lock()
		r.PasswordHash = ""
		r.mu.Unlock()
		return nil
	}
	hash, err := utils.HashPassword(plain, cost)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.PasswordHash = hash
	r.mu.Unlock()
	return nil
}

// CheckPassword reports whether plain unlocks the room. Rooms without a
// password accept anything.
func (r *Room) CheckPassword(plain string) bool {
	r.mu.Lock()
	hash := r.PasswordHash
	r.mu.Unlock()
	if hash == "" {
		return true
	}
	return utils.VerifyPassword(hash, plain)
}
