package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomshare/roomd/internal/model"
	"github.com/roomshare/roomd/internal/shard"
)

func TestCreateAndGet(t *testing.T) {
	g := New(nil)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	room, err := g.Create("abcde", now)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, "abcde", room.ID)

	got, ok := g.Get("abcde")
	require.True(t, ok)
	assert.Same(t, room, got)

	_, ok = g.Get("zzzzz")
	assert.False(t, ok)
}

func TestCreateDuplicateFails(t *testing.T) {
	g := New(nil)
	now := time.Now().UTC()

	_, err := g.Create("abcde", now)
	require.NoError(t, err)

	_, err = g.Create("abcde", now)
	assert.ErrorIs(t, err, ErrRoomExists)
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	g := New(nil)
	now := time.Now().UTC()

	first := g.GetOrCreate(DefaultRoomID, now)
	second := g.GetOrCreate(DefaultRoomID, now)
	assert.Same(t, first, second)
	assert.Equal(t, 1, g.Len())
}

func TestRemove(t *testing.T) {
	g := New(nil)
	now := time.Now().UTC()

	_, err := g.Create("abcde", now)
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())

	g.Remove("abcde")
	assert.Equal(t, 0, g.Len())

	_, ok := g.Get("abcde")
	assert.False(t, ok)
}

func TestSnapshotIsIndependentSlice(t *testing.T) {
	g := New(nil)
	now := time.Now().UTC()

	for _, id := range []string{"one11", "two22", "three"} {
		_, err := g.Create(id, now)
		require.NoError(t, err)
	}

	snap := g.Snapshot()
	require.Len(t, snap, 3)

	g.Remove("one11")
	assert.Len(t, snap, 3, "snapshot should not shrink after Remove")
	assert.Equal(t, 2, g.Len())
}

func TestNewRoomIDShapeAndAlphabet(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := NewRoomID()
		require.NoError(t, err)
		require.Len(t, id, 5)
		for _, c := range id {
			assert.Contains(t, shard.Alphabet, string(c))
		}
		seen[id] = true
	}
	// 50 draws from 36^5 should essentially never collide.
	assert.Greater(t, len(seen), 45)
}

func TestVBrowserCount(t *testing.T) {
	g := New(nil)
	now := time.Now().UTC()

	a, err := g.Create("aaaaa", now)
	require.NoError(t, err)
	_, err = g.Create("bbbbb", now)
	require.NoError(t, err)

	require.NoError(t, a.AssignVBrowser(&model.VBrowserSession{ID: "vb-1", Provider: "docker"}, now))
	assert.Equal(t, 1, g.VBrowserCount())
}
