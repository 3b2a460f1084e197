// Package registry holds the in-memory room table for one shard. While a
// room is active the registry copy is the system of record; durable rows
// are a best-effort backup refreshed by the persister loop.
package registry

import (
	"errors"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/roomshare/roomd/internal/model"
	"github.com/roomshare/roomd/internal/shard"
)

// DefaultRoomID is the permanent room that always exists on every shard
// that owns its leading character. It is created on demand and never
// reclaimed.
const DefaultRoomID = "default"

// roomIDLength is the length of generated room ids.
const roomIDLength = 5

// ErrRoomExists is returned by Create when the id is already registered.
var ErrRoomExists = errors.New("room already exists")

// Registry is the per-process room table. All mutation goes through its
// lock; loops iterate over Snapshot copies and then lock individual rooms.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*model.Room
	emitter model.ChatEmitter
}

// New returns an empty registry. The emitter is attached to every room
// the registry creates; it may be nil.
func New(emitter model.ChatEmitter) *Registry {
	return &Registry{
		rooms:   make(map[string]*model.Room),
		emitter: emitter,
	}
}

// NewRoomID generates a fresh room id over the shard alphabet. The caller
// still owns collision handling via Create.
func NewRoomID() (string, error) {
	return gonanoid.Generate(shard.Alphabet, roomIDLength)
}

// Create registers a new empty room under id. Returns ErrRoomExists when
// the id is taken.
func (g *Registry) Create(id string, now time.Time) (*model.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rooms[id]; ok {
		return nil, ErrRoomExists
	}
	room := model.NewRoom(id, now, g.emitter)
	g.rooms[id] = room
	return room, nil
}

// GetOrCreate returns the room under id, creating it when absent. Used
// for the default room and for rehydration at startup.
func (g *Registry) GetOrCreate(id string, now time.Time) *model.Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[id]; ok {
		return room
	}
	room := model.NewRoom(id, now, g.emitter)
	g.rooms[id] = room
	return room
}

// Get returns the room under id.
func (g *Registry) Get(id string) (*model.Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[id]
	return room, ok
}

// Remove drops the room under id from the table. The caller is
// responsible for releasing anything the room holds first.
func (g *Registry) Remove(id string) {
	g.mu.Lock()
	delete(g.rooms, id)
	g.mu.Unlock()
}

// Len returns the number of rooms in memory.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Snapshot returns the current rooms as a slice. The slice is a copy; the
// rooms are the live objects.
func (g *Registry) Snapshot() []*model.Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*model.Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		out = append(out, room)
	}
	return out
}

// VBrowserCount returns how many rooms currently hold a session. Used by
// the ops status endpoint.
func (g *Registry) VBrowserCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, room := range g.rooms {
		if room.VBrowserSnapshot() != nil {
			n++
		}
	}
	return n
}
