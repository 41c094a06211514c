package media

import (
	"sync"
)

// TrackKind identifies the signal type of a track
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Source identifies where a stream's media originates
type Source string

const (
	SourceCamera Source = "camera"
	SourceScreen Source = "screen"
	SourceRemote Source = "remote"
)

// Track is a single audio or video signal within a capture handle. It can be
// enabled/disabled independently without stopping the underlying device.
type Track struct {
	mu      sync.Mutex
	kind    TrackKind
	label   string
	enabled bool
	stopped bool
	ended   bool
	onEnded func()
}

// NewTrack creates an enabled track of the given kind
func NewTrack(kind TrackKind, label string) *Track {
	return &Track{kind: kind, label: label, enabled: true}
}

// Kind returns the track's signal type
func (t *Track) Kind() TrackKind {
	return t.kind
}

// Label returns the device label the track was captured from
func (t *Track) Label() string {
	return t.label
}

// Enabled reports whether the track is currently enabled
func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled enables or disables the track without releasing the device
func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Stop releases the underlying device for this track
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether the track has been stopped
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// OnEnded registers a handler invoked when the source ends the track on its
// own (e.g. the user stops a screen share via the OS-level control).
func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = fn
}

// End signals that the source ended the track externally. The registered
// handler fires at most once.
func (t *Track) End() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.stopped = true
	fn := t.onEnded
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Clone returns a new track sharing the same device but with independent
// enabled state, mirroring how an audio track is carried over to a screen
// capture stream.
func (t *Track) Clone() *Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Track{kind: t.kind, label: t.label, enabled: t.enabled}
}

// Stream is an open capture handle yielding one or more tracks
type Stream struct {
	source Source
	tracks []*Track
}

// NewStream creates a stream over the given tracks
func NewStream(source Source, tracks ...*Track) *Stream {
	return &Stream{source: source, tracks: tracks}
}

// Source returns where the stream's media originates
func (s *Stream) Source() Source {
	return s.source
}

// Tracks returns all tracks in the stream
func (s *Stream) Tracks() []*Track {
	return s.tracks
}

// AudioTracks returns the stream's audio tracks
func (s *Stream) AudioTracks() []*Track {
	return s.tracksOfKind(TrackKindAudio)
}

// VideoTracks returns the stream's video tracks
func (s *Stream) VideoTracks() []*Track {
	return s.tracksOfKind(TrackKindVideo)
}

func (s *Stream) tracksOfKind(kind TrackKind) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// AddTrack appends a track to the stream
func (s *Stream) AddTrack(t *Track) {
	s.tracks = append(s.tracks, t)
}

// Stop releases every track in the stream
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
