package model

import (
	"encoding/json"
	"time"
)

// roomState is the JSON payload persisted in the room row's data column.
// It carries the replayable parts of the in-memory state; roster is
// deliberately excluded (connections do not survive a restart) while the
// vBrowser reference is included so a restarted shard keeps renewing the
// session's locks.
type roomState struct {
	Video    string           `json:"video,omitempty"`
	VideoTS  float64          `json:"videoTS,omitempty"`
	Paused   bool             `json:"paused,omitempty"`
	Subtitle string           `json:"subtitle,omitempty"`
	Chat     []ChatMessage    `json:"chat,omitempty"`
	Creator  string           `json:"creator,omitempty"`
	Created  time.Time        `json:"created"`
	VBrowser *VBrowserSession `json:"vBrowser,omitempty"`
}

// State serializes the room's durable state for the data column.
func (r *Room) State() ([]byte, error) {
	r.mu.Lock()
	st := roomState{
		Video:    r.Video,
		VideoTS:  r.VideoTS,
		Paused:   r.Paused,
		Subtitle: r.Subtitle,
		Chat:     r.Chat,
		Creator:  r.Creator,
		Created:  r.CreationTime,
		VBrowser: r.VBrowser,
	}
	r.mu.Unlock()
	return json.Marshal(st)
}

// ApplyState rehydrates the room from a persisted data column. Unknown
// fields are ignored so older rows keep loading after schema drift.
func (r *Room) ApplyState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var st roomState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	r.mu.Lock()
	r.Video = st.Video
	r.VideoTS = st.VideoTS
	r.Paused = st.Paused
	r.Subtitle = st.Subtitle
	r.Chat = st.Chat
	r.Creator = st.Creator
	if !st.Created.IsZero() {
		r.CreationTime = st.Created
	}
	r.VBrowser = st.VBrowser
	r.mu.Unlock()
	return nil
}
