package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meetsense-backend/internal/domain"
	"meetsense-backend/internal/media"
)

// DefaultConnectDelay is how long a new session stays in "connecting" before
// it reports "connected".
const DefaultConnectDelay = 2 * time.Second

// Session is the single source of truth for an in-progress call. Every other
// component reads and mutates it through its operations; the mutex makes each
// operation atomic as observed from any other goroutine, so no reader ever
// sees micEnabled out of step with the underlying track.
type Session struct {
	mu sync.Mutex

	id       uuid.UUID
	log      *zap.Logger
	notifier Notifier
	provider media.Provider
	now      func() time.Time

	localMedia  *media.Stream
	remoteMedia []*media.Stream
	activeMedia *media.Stream
	// mediaGen is bumped every time localMedia is replaced so a periodic task
	// started against an old handle can detect it went stale.
	mediaGen int

	micEnabled      bool
	videoEnabled    bool
	isScreenSharing bool
	status          domain.ConnectionStatus
	participants    []string

	startInstant   time.Time
	elapsedSeconds int

	events []domain.DetectionEvent
	alert  domain.Alert

	onAlert func(domain.Alert)
	onEvent func(domain.DetectionEvent)
	onMedia func(gen int, stream *media.Stream)

	connectDelay time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

// Option configures a Session
type Option func(*Session)

// WithNotifier sets the sink for user-visible notices
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithLogger sets the session logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithClock overrides the wall clock (tests)
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithConnectDelay overrides the connecting→connected delay
func WithConnectDelay(d time.Duration) Option {
	return func(s *Session) { s.connectDelay = d }
}

// New creates a session owned by one call. The local user occupies
// participant slot zero; status starts as connecting and flips to connected
// after the connect delay.
func New(provider media.Provider, opts ...Option) *Session {
	s := &Session{
		id:           uuid.New(),
		log:          zap.NewNop(),
		notifier:     NopNotifier{},
		provider:     provider,
		now:          time.Now,
		micEnabled:   true,
		videoEnabled: true,
		status:       domain.StatusConnecting,
		participants: []string{"You"},
		connectDelay: DefaultConnectDelay,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startInstant = s.now()

	go s.connectAfterDelay()

	return s
}

// connectAfterDelay drives the connecting→connected transition
func (s *Session) connectAfterDelay() {
	timer := time.NewTimer(s.connectDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.mu.Lock()
		if s.status == domain.StatusConnecting {
			s.status = domain.StatusConnected
		}
		s.mu.Unlock()
	case <-s.done:
	}
}

// ID returns the session identifier
func (s *Session) ID() uuid.UUID {
	return s.id
}

// OnAlert registers the handler invoked whenever the alert projection is set
func (s *Session) OnAlert(fn func(domain.Alert)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAlert = fn
}

// OnEvent registers the handler invoked for every appended detection event
func (s *Session) OnEvent(fn func(domain.DetectionEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

// OnMediaReplaced registers the handler invoked when the local capture handle
// changes. The generation lets the caller scope detection loops to the exact
// lifetime of the handle.
func (s *Session) OnMediaReplaced(fn func(gen int, stream *media.Stream)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMedia = fn
}

// SetLocalMedia replaces the local capture handle, releasing the previous
// one's tracks. Enabled flags re-derive from the new handle's tracks, so an
// audio-only fallback stream comes up with video reported off.
func (s *Session) SetLocalMedia(stream *media.Stream) {
	s.mu.Lock()
	prev := s.localMedia
	s.localMedia = stream
	s.mediaGen++
	gen := s.mediaGen

	if s.activeMedia == nil || s.activeMedia == prev {
		s.activeMedia = stream
	}

	s.micEnabled = false
	s.videoEnabled = false
	if stream != nil {
		for _, t := range stream.AudioTracks() {
			if t.Enabled() {
				s.micEnabled = true
				break
			}
		}
		for _, t := range stream.VideoTracks() {
			if t.Enabled() {
				s.videoEnabled = true
				break
			}
		}
	}
	onMedia := s.onMedia
	s.mu.Unlock()

	if prev != nil && prev != stream {
		prev.Stop()
	}
	if onMedia != nil {
		onMedia(gen, stream)
	}
}

// ToggleMic flips the mic enabled flag together with the underlying audio
// track. No-op when there is no local media or no audio track.
func (s *Session) ToggleMic() {
	s.mu.Lock()
	if s.localMedia == nil {
		s.mu.Unlock()
		return
	}
	tracks := s.localMedia.AudioTracks()
	if len(tracks) == 0 {
		s.mu.Unlock()
		return
	}

	enabled := !s.micEnabled
	tracks[0].SetEnabled(enabled)
	s.micEnabled = enabled
	s.mu.Unlock()

	if enabled {
		s.notifier.Notify(NoticeInfo, "Microphone unmuted")
	} else {
		s.notifier.Notify(NoticeInfo, "Microphone muted")
	}
}

// ToggleVideo flips the video enabled flag together with the underlying
// video track. No-op when there is no local media or no video track.
func (s *Session) ToggleVideo() {
	s.mu.Lock()
	if s.localMedia == nil {
		s.mu.Unlock()
		return
	}
	tracks := s.localMedia.VideoTracks()
	if len(tracks) == 0 {
		s.mu.Unlock()
		return
	}

	enabled := !s.videoEnabled
	tracks[0].SetEnabled(enabled)
	s.videoEnabled = enabled
	s.mu.Unlock()

	if enabled {
		s.notifier.Notify(NoticeInfo, "Camera turned on")
	} else {
		s.notifier.Notify(NoticeInfo, "Camera turned off")
	}
}

// ShareScreen toggles screen sharing. Turning on replaces the outbound video
// source with a screen capture carrying over the existing audio track;
// turning off restores a fresh camera+mic capture. Acquisition failure is
// non-fatal: the user is warned and state is left unchanged.
func (s *Session) ShareScreen(ctx context.Context) {
	s.mu.Lock()
	sharing := s.isScreenSharing
	s.mu.Unlock()

	if sharing {
		s.stopScreenShare(ctx, "Screen sharing stopped")
		return
	}

	screenStream, err := s.provider.CaptureDisplay(ctx)
	if err != nil {
		s.log.Warn("screen capture failed", zap.Error(err))
		s.notifier.Notify(NoticeError, "Failed to share screen")
		return
	}

	s.mu.Lock()
	// Carry the live audio track over to the screen stream so the mic keeps
	// flowing while sharing.
	if s.localMedia != nil {
		if audio := s.localMedia.AudioTracks(); len(audio) > 0 {
			screenStream.AddTrack(audio[0].Clone())
		}
	}
	prev := s.localMedia
	s.localMedia = screenStream
	s.mediaGen++
	gen := s.mediaGen
	if s.activeMedia == prev {
		s.activeMedia = screenStream
	}
	s.isScreenSharing = true
	onMedia := s.onMedia

	// The OS-level stop control ends the screen track outside our control;
	// restore the camera when that happens.
	if video := screenStream.VideoTracks(); len(video) > 0 {
		video[0].OnEnded(func() {
			s.stopScreenShare(context.Background(), "Screen sharing stopped")
		})
	}
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	if onMedia != nil {
		onMedia(gen, screenStream)
	}

	s.notifier.Notify(NoticeSuccess, "Screen sharing started")
}

// stopScreenShare releases the screen capture and restores a fresh
// camera+mic stream.
func (s *Session) stopScreenShare(ctx context.Context, notice string) {
	s.mu.Lock()
	if !s.isScreenSharing {
		s.mu.Unlock()
		return
	}
	s.isScreenSharing = false
	s.mu.Unlock()

	cameraStream, err := media.AcquireLocalMedia(ctx, s.provider)
	if err != nil {
		s.log.Warn("camera restore failed", zap.Error(err))
		s.notifier.Notify(NoticeError, "Failed to restore camera after screen share")
		s.SetLocalMedia(nil)
		return
	}

	s.SetLocalMedia(cameraStream.Stream)
	s.notifier.Notify(NoticeInfo, notice)
}

// AddRemoteMedia appends a remote participant stream, names the participant,
// and promotes the stream to the active view.
func (s *Session) AddRemoteMedia(stream *media.Stream) {
	s.mu.Lock()
	s.remoteMedia = append(s.remoteMedia, stream)
	s.activeMedia = stream
	s.participants = append(s.participants, fmt.Sprintf("User %d", len(s.participants)))
	s.mu.Unlock()

	s.notifier.Notify(NoticeSuccess, "New participant joined")
}

// SetActiveMedia promotes a stream to the main view
func (s *Session) SetActiveMedia(stream *media.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeMedia = stream
}

// RecordDetection appends a detection event and raises the alert projection
// in one atomic step. This is the only way the event log grows; logging and
// the projection never happen without each other.
func (s *Session) RecordDetection(kind domain.DetectionKind, message string) domain.DetectionEvent {
	s.mu.Lock()
	event := domain.DetectionEvent{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: s.now(),
		Message:    message,
	}
	s.events = append(s.events, event)
	s.alert = domain.Alert{Visible: true, Kind: kind, Message: message}
	alert := s.alert
	onAlert := s.onAlert
	onEvent := s.onEvent
	s.mu.Unlock()

	if onEvent != nil {
		onEvent(event)
	}
	if onAlert != nil {
		onAlert(alert)
	}
	return event
}

// SetAlert sets the single current alert projection, replacing any visible one
func (s *Session) SetAlert(kind domain.DetectionKind, message string) {
	s.mu.Lock()
	s.alert = domain.Alert{Visible: true, Kind: kind, Message: message}
	alert := s.alert
	onAlert := s.onAlert
	s.mu.Unlock()

	if onAlert != nil {
		onAlert(alert)
	}
}

// ClearAlert hides the current alert projection. Clearing an already-hidden
// alert is a no-op.
func (s *Session) ClearAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = domain.Alert{}
}

// Tick recomputes the elapsed duration from the wall clock. Writes are
// monotone: a clock stepping backwards never shrinks the reading.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := int(now.Sub(s.startInstant).Seconds())
	if elapsed > s.elapsedSeconds {
		s.elapsedSeconds = elapsed
	}
}

// Close tears the session down: all periodic tasks scoped to the session
// stop and every capture device is released.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		local := s.localMedia
		remotes := s.remoteMedia
		s.localMedia = nil
		s.activeMedia = nil
		s.mediaGen++
		s.status = domain.StatusDisconnected
		s.mu.Unlock()

		if local != nil {
			local.Stop()
		}
		for _, r := range remotes {
			r.Stop()
		}
	})
}

// Done is closed when the session has been torn down
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Accessors. All return consistent snapshots taken under the session lock.

// LocalMedia returns the current local capture handle
func (s *Session) LocalMedia() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localMedia
}

// ActiveMedia returns the stream currently promoted to the main view
func (s *Session) ActiveMedia() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeMedia
}

// RemoteMedia returns the remote streams in join order
func (s *Session) RemoteMedia() []*media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*media.Stream, len(s.remoteMedia))
	copy(out, s.remoteMedia)
	return out
}

// MediaGeneration returns the current local-media generation counter
func (s *Session) MediaGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaGen
}

// MicEnabled reports the mic flag
func (s *Session) MicEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micEnabled
}

// VideoEnabled reports the video flag
func (s *Session) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoEnabled
}

// IsScreenSharing reports whether the outbound video originates from screen
// capture.
func (s *Session) IsScreenSharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isScreenSharing
}

// Status returns the connection status
func (s *Session) Status() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Participants returns the display names, local user first
func (s *Session) Participants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.participants))
	copy(out, s.participants)
	return out
}

// StartInstant returns the fixed session start time
func (s *Session) StartInstant() time.Time {
	return s.startInstant
}

// ElapsedSeconds returns the last duration-clock reading
func (s *Session) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedSeconds
}

// Events returns a copy of the append-only event log in firing order
func (s *Session) Events() []domain.DetectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DetectionEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Alert returns the current alert projection
func (s *Session) Alert() domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alert
}

// HasAudioTrack reports whether the local capture has at least one audio track
func (s *Session) HasAudioTrack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localMedia != nil && len(s.localMedia.AudioTracks()) > 0
}

// HasVideoTrack reports whether the local capture has at least one video track
func (s *Session) HasVideoTrack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localMedia != nil && len(s.localMedia.VideoTracks()) > 0
}
