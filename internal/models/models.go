package models

import "time"

// MediaKind enumerates playable content categories.
type MediaKind string

const (
	MediaImage      MediaKind = "image"
	MediaVideo      MediaKind = "video"
	MediaFeed       MediaKind = "feed"
	MediaLiveStream MediaKind = "live_stream"
)

// RuleKind tags the schedule rule variant.
type RuleKind int

const (
	RuleDefault RuleKind = iota
	RuleDoNotPlay
	RuleCustomWindow
)

// CustomWindow restricts playback to a date range, weekday set, and
// time-of-day window. Time bounds keep the textual "H:MM[am|pm]" form the
// companion server sends; an empty or unparsable bound makes the window
// clause false.
type CustomWindow struct {
	DateFrom  time.Time
	DateTo    time.Time
	Days      [7]bool // Sunday = 0 .. Saturday = 6
	TimeStart string
	TimeEnd   string
}

// ScheduleRule is a closed tagged union; Window is only meaningful when
// Kind is RuleCustomWindow.
type ScheduleRule struct {
	Kind   RuleKind
	Window CustomWindow
}

// PlaylistItem is one schedulable unit of the rotation.
type PlaylistItem struct {
	ID               string
	SequenceIndex    int
	DurationSeconds  float64
	MediaKind        MediaKind
	Schedule         ScheduleRule
	IsFullscreen     bool
	IsProgrammatic   bool
	ProofOfPlayToken string
	Title            string
	FileName         string
	URL              string
}

// PlaylistSnapshot holds the ordered native items plus the vendor ad pool.
// A refresh replaces the snapshot wholesale; it is never patched in place.
type PlaylistSnapshot struct {
	PlaylistID string
	Items      []PlaylistItem
	VendorPool []PlaylistItem
	FetchedAt  time.Time
}

// LiveStreams returns the live-stream subset of the native items in
// sequence order.
func (s *PlaylistSnapshot) LiveStreams() []PlaylistItem {
	var out []PlaylistItem
	for _, item := range s.Items {
		if item.MediaKind == MediaLiveStream {
			out = append(out, item)
		}
	}
	return out
}

// PlaybackState is the mutable heart of the scheduler. It is owned
// exclusively by the playout director; no other component mutates it.
type PlaybackState struct {
	CurrentIndex             int
	VendorCounter            int
	VendorPoolIndex          int
	CurrentlyShown           *PlaylistItem
	LivestreamOverrideActive bool
}

// NewPlaybackState returns the initial state for a freshly loaded playlist.
func NewPlaybackState() PlaybackState {
	return PlaybackState{VendorCounter: 1}
}

// PlaybackPosition persists the sequence cursor across restarts, keyed by
// playlist identity.
type PlaybackPosition struct {
	Key       string `gorm:"primaryKey;type:varchar(128)"`
	Value     string `gorm:"type:varchar(64)"`
	UpdatedAt time.Time
}

// PlayLog journals one completed showing for the operator's audit trail.
type PlayLog struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	ItemID       string    `gorm:"index"`
	Title        string
	MediaKind    MediaKind `gorm:"type:varchar(16)"`
	Programmatic bool
	EndReason    string `gorm:"type:varchar(16)"`
	ShownSeconds float64
	CreatedAt    time.Time
}
