package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSurvivesRestartWithoutRoster(t *testing.T) {
	created := time.Date(2024, 5, 20, 8, 30, 0, 0, time.UTC)
	src := NewRoom("aaaaa", created, nil)
	src.AddParticipant(Participant{ID: "p1"}, created)
	src.Video = "https://example.com/movie.mp4"
	src.VideoTS = 1234.5
	src.Paused = true
	src.Subtitle = "https://example.com/movie.srt"
	src.Creator = "uid-9"
	src.AddChatMessage(&Participant{ID: "p1"}, ChatMessage{Msg: "hi"}, created)
	require.NoError(t, src.AssignVBrowser(&VBrowserSession{
		ID:         "vb-1",
		Provider:   "docker",
		Large:      true,
		CreatorUID: "uid-9",
	}, created))

	data, err := src.State()
	require.NoError(t, err)

	dst := NewRoom("aaaaa", created.Add(48*time.Hour), nil)
	require.NoError(t, dst.ApplyState(data))

	assert.True(t, dst.Empty(), "connections do not survive a restart")
	assert.Equal(t, "https://example.com/movie.mp4", dst.Video)
	assert.Equal(t, 1234.5, dst.VideoTS)
	assert.True(t, dst.Paused)
	assert.Equal(t, "https://example.com/movie.srt", dst.Subtitle)
	assert.Equal(t, "uid-9", dst.Creator)
	require.Len(t, dst.Chat, 1)
	assert.Equal(t, "hi", dst.Chat[0].Msg)
	require.NotNil(t, dst.VBrowser, "the session reference must survive so its locks keep renewing")
	assert.Equal(t, "vb-1", dst.VBrowser.ID)
	assert.True(t, dst.VBrowser.Large)
	assert.Equal(t, created, dst.CreationTime, "the original creation time wins over the restart clock")
}

func TestApplyStateEmptyIsNoOp(t *testing.T) {
	r := NewRoom("aaaaa", time.Now(), nil)
	r.Video = "kept"
	require.NoError(t, r.ApplyState(nil))
	require.NoError(t, r.ApplyState([]byte{}))
	assert.Equal(t, "kept", r.Video)
}

func TestApplyStateRejectsCorruptData(t *testing.T) {
	r := NewRoom("aaaaa", time.Now(), nil)
	assert.Error(t, r.ApplyState([]byte("{truncated")))
}
