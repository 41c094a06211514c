package detection

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"meetsense-backend/internal/domain"
)

// Fixed alert messages shown to the user when a heuristic fires
const (
	MicAlertMessage    = "You appear to be speaking while your microphone is muted!"
	CameraAlertMessage = "Your camera is on but no face is detected in frame!"
)

// Config tunes the detection heuristics. The zero value is not usable; use
// DefaultConfig.
type Config struct {
	// LoudnessThreshold is the amplitude (0-255 scale) above which a sample
	// counts as speech.
	LoudnessThreshold float64
	// SpeakingFrames is the consecutive qualifying sample count that must be
	// exceeded before a mic alert fires.
	SpeakingFrames int
	// MicCooldown is the minimum time between two mic alerts.
	MicCooldown time.Duration
	// CameraInterval is the camera check cadence.
	CameraInterval time.Duration
	// CameraCooldown is the minimum time between two camera alerts.
	CameraCooldown time.Duration
	// CameraProbability is the per-check chance of a camera alert. The draw
	// is a stand-in for a frame-analysis signal; the cooldown contract is
	// what matters.
	CameraProbability float64
}

// DefaultConfig returns the production detection tuning
func DefaultConfig() Config {
	return Config{
		LoudnessThreshold: 30,
		SpeakingFrames:    10,
		MicCooldown:       10 * time.Second,
		CameraInterval:    15 * time.Second,
		CameraCooldown:    15 * time.Second,
		CameraProbability: 0.1,
	}
}

// Store is the slice of the session state the engine reads and writes
type Store interface {
	MicEnabled() bool
	VideoEnabled() bool
	HasAudioTrack() bool
	HasVideoTrack() bool
	MediaGeneration() int
	RecordDetection(kind domain.DetectionKind, message string) domain.DetectionEvent
}

// SampleSource delivers amplitude samples from the local audio capture, one
// per render frame. The channel closes when the capture ends.
type SampleSource interface {
	Levels() <-chan float64
}

// Engine produces detection events from an amplitude sample stream and a
// periodic camera check, with per-kind cooldown windows so one noisy minute
// cannot turn into an alert storm.
type Engine struct {
	store Store
	cfg   Config
	log   *zap.Logger

	now       func() time.Time
	randFloat func() float64

	mu              sync.Mutex
	speakingFrames  int
	lastMicAlert    time.Time
	lastCameraAlert time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock overrides the wall clock (tests)
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand overrides the camera-check random draw (tests)
func WithRand(f func() float64) Option {
	return func(e *Engine) { e.randFloat = f }
}

// New creates a detection engine bound to one session store
func New(store Store, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		cfg:       cfg,
		log:       zap.NewNop(),
		now:       time.Now,
		randFloat: rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunMicDetection consumes amplitude samples for one local-media generation.
// It returns without sampling at all when the handle has no audio tracks,
// and stops as soon as the handle is replaced, the source closes, or the
// context is cancelled. A fresh call against the new generation reinitializes
// cleanly.
func (e *Engine) RunMicDetection(ctx context.Context, gen int, source SampleSource) {
	if source == nil {
		// Audio analysis could not be set up; mic detection stays off for
		// this session but everything else continues.
		e.log.Warn("mic detection disabled: no sample source")
		return
	}
	if !e.store.HasAudioTrack() {
		return
	}

	e.ResetMicCounter()

	for {
		select {
		case <-ctx.Done():
			return
		case level, ok := <-source.Levels():
			if !ok {
				return
			}
			if e.store.MediaGeneration() != gen {
				// The capture handle moved on; a stale loop must not keep
				// mutating the session.
				return
			}
			e.ProcessSample(level)
		}
	}
}

// ProcessSample advances the speaking-while-muted state machine by one
// amplitude sample. Any sample that is not both muted and loud hard-resets
// the consecutive counter.
func (e *Engine) ProcessSample(level float64) {
	e.mu.Lock()

	if e.store.MicEnabled() || level <= e.cfg.LoudnessThreshold {
		e.speakingFrames = 0
		e.mu.Unlock()
		return
	}

	e.speakingFrames++
	now := e.now()
	if e.speakingFrames <= e.cfg.SpeakingFrames {
		e.mu.Unlock()
		return
	}
	if !e.lastMicAlert.IsZero() && now.Sub(e.lastMicAlert) < e.cfg.MicCooldown {
		e.mu.Unlock()
		return
	}

	e.speakingFrames = 0
	e.lastMicAlert = now
	e.mu.Unlock()

	e.store.RecordDetection(domain.DetectionKindMic, MicAlertMessage)
}

// ResetMicCounter zeroes the consecutive-frame counter, e.g. when sampling
// restarts against a new capture handle.
func (e *Engine) ResetMicCounter() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speakingFrames = 0
}

// RunCameraDetection runs the coarse periodic camera check until the context
// is cancelled.
func (e *Engine) RunCameraDetection(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.CameraInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.CheckCamera()
		}
	}
}

// CheckCamera performs one camera-no-frame check. The random draw stands in
// for a real frame-analysis signal; the per-kind cooldown window holds
// regardless of the draw's outcome.
func (e *Engine) CheckCamera() {
	if !e.store.HasVideoTrack() || !e.store.VideoEnabled() {
		return
	}

	e.mu.Lock()
	now := e.now()
	if !e.lastCameraAlert.IsZero() && now.Sub(e.lastCameraAlert) < e.cfg.CameraCooldown {
		e.mu.Unlock()
		return
	}
	if e.randFloat() >= e.cfg.CameraProbability {
		e.mu.Unlock()
		return
	}
	e.lastCameraAlert = now
	e.mu.Unlock()

	e.store.RecordDetection(domain.DetectionKindCamera, CameraAlertMessage)
}
