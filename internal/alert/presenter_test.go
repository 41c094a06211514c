package alert

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meetsense-backend/internal/domain"
)

// fakeStore counts alert clears
type fakeStore struct {
	mu     sync.Mutex
	clears int
}

func (s *fakeStore) ClearAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *fakeStore) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func micAlert() domain.Alert {
	return domain.Alert{Visible: true, Kind: domain.DetectionKindMic, Message: "muted speech"}
}

// TestPresentDecaysAndDismisses tests the full countdown lifecycle
func TestPresentDecaysAndDismisses(t *testing.T) {
	store := &fakeStore{}
	p := New(store, WithTiming(100*time.Millisecond, 5*time.Millisecond))

	p.Present(micAlert())
	assert.True(t, p.Current().Visible)
	assert.Equal(t, float64(100), p.Progress())

	assert.Eventually(t, func() bool {
		return !p.Current().Visible && store.clearCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(0), p.Progress())
}

// TestPresentReplacesCurrent tests that a new alert restarts the countdown
func TestPresentReplacesCurrent(t *testing.T) {
	store := &fakeStore{}
	p := New(store, WithTiming(200*time.Millisecond, 5*time.Millisecond))

	p.Present(micAlert())

	assert.Eventually(t, func() bool {
		return p.Progress() < 80
	}, time.Second, 5*time.Millisecond)

	replacement := domain.Alert{Visible: true, Kind: domain.DetectionKindCamera, Message: "no face"}
	p.Present(replacement)

	assert.Equal(t, replacement, p.Current())
	assert.Equal(t, float64(100), p.Progress())

	// Only the replacement's own countdown dismisses it
	assert.Eventually(t, func() bool {
		return store.clearCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, p.Current().Visible)
}

// TestDismissIdempotent tests that repeated dismissal clears once
func TestDismissIdempotent(t *testing.T) {
	store := &fakeStore{}
	p := New(store, WithTiming(time.Hour, time.Minute))

	p.Present(micAlert())
	p.Dismiss()
	p.Dismiss()

	assert.False(t, p.Current().Visible)
	assert.Equal(t, 1, store.clearCount())
}

// TestPresentInvisibleIgnored tests that a hidden alert never projects
func TestPresentInvisibleIgnored(t *testing.T) {
	store := &fakeStore{}
	p := New(store)

	p.Present(domain.Alert{})

	assert.False(t, p.Current().Visible)
	assert.Equal(t, float64(0), p.Progress())
}

// TestProgressHook tests the progress callback stepping down
func TestProgressHook(t *testing.T) {
	store := &fakeStore{}
	var mu sync.Mutex
	var updates []float64
	p := New(store,
		WithTiming(50*time.Millisecond, 5*time.Millisecond),
		WithProgress(func(percent float64) {
			mu.Lock()
			updates = append(updates, percent)
			mu.Unlock()
		}),
	)

	p.Present(micAlert())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) > 2 && updates[len(updates)-1] == 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, float64(100), updates[0])
	for i := 1; i < len(updates); i++ {
		assert.LessOrEqual(t, updates[i], updates[i-1])
	}
}
