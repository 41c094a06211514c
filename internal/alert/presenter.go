package alert

import (
	"sync"
	"time"

	"meetsense-backend/internal/domain"
)

// Defaults for the visible alert lifetime
const (
	DefaultVisibleFor = 5 * time.Second
	DefaultStep       = 50 * time.Millisecond
)

// Store is the slice of session state the presenter drives
type Store interface {
	ClearAlert()
}

// Presenter projects the single current alert for a fixed visible window,
// decaying a progress bar to zero and then dismissing it exactly once. A new
// alert while one is visible replaces it and restarts the countdown; it never
// stacks.
type Presenter struct {
	store      Store
	visibleFor time.Duration
	step       time.Duration
	onProgress func(percent float64)

	mu       sync.Mutex
	current  domain.Alert
	progress float64
	// gen invalidates the decay goroutine of a replaced or dismissed alert
	gen int
}

// Option configures a Presenter
type Option func(*Presenter)

// WithTiming overrides the visible window and decay step (tests)
func WithTiming(visibleFor, step time.Duration) Option {
	return func(p *Presenter) {
		p.visibleFor = visibleFor
		p.step = step
	}
}

// WithProgress registers a hook receiving each progress update (0-100)
func WithProgress(fn func(percent float64)) Option {
	return func(p *Presenter) { p.onProgress = fn }
}

// New creates a presenter bound to one session store
func New(store Store, opts ...Option) *Presenter {
	p := &Presenter{
		store:      store,
		visibleFor: DefaultVisibleFor,
		step:       DefaultStep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Present shows an alert, restarting the countdown if one is already visible
func (p *Presenter) Present(a domain.Alert) {
	if !a.Visible {
		return
	}

	p.mu.Lock()
	p.current = a
	p.progress = 100
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	if p.onProgress != nil {
		p.onProgress(100)
	}

	go p.decay(gen)
}

// decay steps the progress bar down to zero, then dismisses
func (p *Presenter) decay(gen int) {
	ticker := time.NewTicker(p.step)
	defer ticker.Stop()

	steps := float64(p.visibleFor / p.step)
	delta := 100 / steps

	for range ticker.C {
		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		p.progress -= delta
		if p.progress > 0 {
			progress := p.progress
			onProgress := p.onProgress
			p.mu.Unlock()
			if onProgress != nil {
				onProgress(progress)
			}
			continue
		}
		p.progress = 0
		p.mu.Unlock()

		if p.onProgress != nil {
			p.onProgress(0)
		}
		p.Dismiss()
		return
	}
}

// Dismiss hides the current alert. Dismissing an already-dismissed alert is
// a no-op.
func (p *Presenter) Dismiss() {
	p.mu.Lock()
	if !p.current.Visible {
		p.mu.Unlock()
		return
	}
	p.current = domain.Alert{}
	p.gen++
	p.mu.Unlock()

	p.store.ClearAlert()
}

// Current returns the alert currently projected, if any
func (p *Presenter) Current() domain.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Progress returns the remaining visible window as a 0-100 percentage
func (p *Presenter) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}
