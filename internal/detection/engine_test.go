package detection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetsense-backend/internal/domain"
)

// fakeStore is a minimal session stand-in for the engine
type fakeStore struct {
	mu           sync.Mutex
	micEnabled   bool
	videoEnabled bool
	hasAudio     bool
	hasVideo     bool
	mediaGen     int
	events       []domain.DetectionEvent
}

func (s *fakeStore) MicEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micEnabled
}

func (s *fakeStore) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoEnabled
}

func (s *fakeStore) HasAudioTrack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasAudio
}

func (s *fakeStore) HasVideoTrack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasVideo
}

func (s *fakeStore) MediaGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaGen
}

func (s *fakeStore) RecordDetection(kind domain.DetectionKind, message string) domain.DetectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	event := domain.DetectionEvent{ID: uuid.New(), Kind: kind, OccurredAt: time.Now(), Message: message}
	s.events = append(s.events, event)
	return event
}

func (s *fakeStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *fakeStore) lastEvent() domain.DetectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func (s *fakeStore) setMicEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.micEnabled = enabled
}

// testClock is a settable wall clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(store *fakeStore) (*Engine, *testClock) {
	clock := &testClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	engine := New(store, DefaultConfig(), WithClock(clock.Now))
	return engine, clock
}

// TestProcessSampleFiresAfterThreshold tests the consecutive-frame gate
func TestProcessSampleFiresAfterThreshold(t *testing.T) {
	store := &fakeStore{hasAudio: true}
	engine, _ := newTestEngine(store)

	// Ten loud samples while muted are not yet enough
	for i := 0; i < 10; i++ {
		engine.ProcessSample(80)
	}
	assert.Equal(t, 0, store.eventCount())

	// The eleventh crosses the gate
	engine.ProcessSample(80)
	require.Equal(t, 1, store.eventCount())
	assert.Equal(t, domain.DetectionKindMic, store.lastEvent().Kind)
	assert.Equal(t, MicAlertMessage, store.lastEvent().Message)
}

// TestProcessSampleQuietResetsCounter tests the hard reset on a quiet sample
func TestProcessSampleQuietResetsCounter(t *testing.T) {
	store := &fakeStore{hasAudio: true}
	engine, _ := newTestEngine(store)

	for i := 0; i < 10; i++ {
		engine.ProcessSample(80)
	}
	engine.ProcessSample(5)

	// The counter restarted; ten more loud samples still do not fire
	for i := 0; i < 10; i++ {
		engine.ProcessSample(80)
	}
	assert.Equal(t, 0, store.eventCount())

	engine.ProcessSample(80)
	assert.Equal(t, 1, store.eventCount())
}

// TestProcessSampleMicEnabledResetsCounter tests that unmuting resets the gate
func TestProcessSampleMicEnabledResetsCounter(t *testing.T) {
	store := &fakeStore{hasAudio: true}
	engine, _ := newTestEngine(store)

	for i := 0; i < 10; i++ {
		engine.ProcessSample(80)
	}

	store.setMicEnabled(true)
	engine.ProcessSample(80)
	store.setMicEnabled(false)

	for i := 0; i < 10; i++ {
		engine.ProcessSample(80)
	}
	assert.Equal(t, 0, store.eventCount())
}

// TestProcessSampleThresholdBoundary tests that the threshold is exclusive
func TestProcessSampleThresholdBoundary(t *testing.T) {
	store := &fakeStore{hasAudio: true}
	engine, _ := newTestEngine(store)

	// Samples exactly at the threshold never qualify
	for i := 0; i < 30; i++ {
		engine.ProcessSample(30)
	}
	assert.Equal(t, 0, store.eventCount())
}

// TestMicCooldown tests the suppression window between mic alerts
func TestMicCooldown(t *testing.T) {
	store := &fakeStore{hasAudio: true}
	engine, clock := newTestEngine(store)

	for i := 0; i < 11; i++ {
		engine.ProcessSample(80)
	}
	require.Equal(t, 1, store.eventCount())

	// Half the window in: loud muted speech keeps accumulating but cannot fire
	clock.Advance(5 * time.Second)
	for i := 0; i < 20; i++ {
		engine.ProcessSample(80)
	}
	assert.Equal(t, 1, store.eventCount())

	// Once the window has passed, the next qualifying sample fires
	clock.Advance(5 * time.Second)
	engine.ProcessSample(80)
	assert.Equal(t, 2, store.eventCount())
}

// chanSource feeds amplitude samples from a channel
type chanSource struct {
	ch chan float64
}

func (s *chanSource) Levels() <-chan float64 {
	return s.ch
}

// TestRunMicDetectionNoAudioTrack tests that sampling is skipped entirely
func TestRunMicDetectionNoAudioTrack(t *testing.T) {
	store := &fakeStore{hasAudio: false}
	engine, _ := newTestEngine(store)

	source := &chanSource{ch: make(chan float64)}
	done := make(chan struct{})
	go func() {
		engine.RunMicDetection(context.Background(), 0, source)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detection loop should return when there is no audio track")
	}
}

// TestRunMicDetectionNilSource tests the analysis-unavailable path
func TestRunMicDetectionNilSource(t *testing.T) {
	store := &fakeStore{hasAudio: true}
	engine, _ := newTestEngine(store)

	done := make(chan struct{})
	go func() {
		engine.RunMicDetection(context.Background(), 0, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detection loop should return without a sample source")
	}
	assert.Equal(t, 0, store.eventCount())
}

// TestRunMicDetectionStaleGeneration tests that a replaced handle kills the loop
func TestRunMicDetectionStaleGeneration(t *testing.T) {
	store := &fakeStore{hasAudio: true, mediaGen: 2}
	engine, _ := newTestEngine(store)

	source := &chanSource{ch: make(chan float64, 1)}
	done := make(chan struct{})
	go func() {
		engine.RunMicDetection(context.Background(), 1, source)
		close(done)
	}()

	source.ch <- 80

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detection loop should stop on a stale generation")
	}
	assert.Equal(t, 0, store.eventCount())
}

// TestRunMicDetectionProcessesSamples tests the end-to-end sample path
func TestRunMicDetectionProcessesSamples(t *testing.T) {
	store := &fakeStore{hasAudio: true}
	engine, _ := newTestEngine(store)

	source := &chanSource{ch: make(chan float64, 16)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.RunMicDetection(ctx, 0, source)

	for i := 0; i < 11; i++ {
		source.ch <- 80
	}

	assert.Eventually(t, func() bool {
		return store.eventCount() == 1
	}, time.Second, 10*time.Millisecond)
}

// TestCheckCameraFires tests the camera heuristic firing
func TestCheckCameraFires(t *testing.T) {
	store := &fakeStore{hasVideo: true, videoEnabled: true}
	clock := &testClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	engine := New(store, DefaultConfig(),
		WithClock(clock.Now),
		WithRand(func() float64 { return 0.05 }),
	)

	engine.CheckCamera()
	require.Equal(t, 1, store.eventCount())
	assert.Equal(t, domain.DetectionKindCamera, store.lastEvent().Kind)
	assert.Equal(t, CameraAlertMessage, store.lastEvent().Message)
}

// TestCheckCameraVideoOff tests that a disabled camera never alerts
func TestCheckCameraVideoOff(t *testing.T) {
	store := &fakeStore{hasVideo: true, videoEnabled: false}
	engine, _ := newTestEngine(store)
	engine.randFloat = func() float64 { return 0 }

	engine.CheckCamera()
	assert.Equal(t, 0, store.eventCount())
}

// TestCheckCameraNoTrack tests that a missing video track never alerts
func TestCheckCameraNoTrack(t *testing.T) {
	store := &fakeStore{hasVideo: false, videoEnabled: true}
	engine, _ := newTestEngine(store)
	engine.randFloat = func() float64 { return 0 }

	engine.CheckCamera()
	assert.Equal(t, 0, store.eventCount())
}

// TestCameraCooldown tests the suppression window between camera alerts
func TestCameraCooldown(t *testing.T) {
	store := &fakeStore{hasVideo: true, videoEnabled: true}
	clock := &testClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	engine := New(store, DefaultConfig(),
		WithClock(clock.Now),
		WithRand(func() float64 { return 0 }),
	)

	engine.CheckCamera()
	require.Equal(t, 1, store.eventCount())

	// Inside the window the check is suppressed regardless of the signal
	clock.Advance(10 * time.Second)
	engine.CheckCamera()
	assert.Equal(t, 1, store.eventCount())

	clock.Advance(5 * time.Second)
	engine.CheckCamera()
	assert.Equal(t, 2, store.eventCount())
}

// TestCameraFailedDrawKeepsCooldownOpen tests that a quiet check consumes nothing
func TestCameraFailedDrawKeepsCooldownOpen(t *testing.T) {
	store := &fakeStore{hasVideo: true, videoEnabled: true}
	clock := &testClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	draw := 0.5
	engine := New(store, DefaultConfig(),
		WithClock(clock.Now),
		WithRand(func() float64 { return draw }),
	)

	engine.CheckCamera()
	assert.Equal(t, 0, store.eventCount())

	// The first check did not alert, so the next positive one need not wait
	draw = 0.05
	engine.CheckCamera()
	assert.Equal(t, 1, store.eventCount())
}
