package media

import (
	"context"
	"errors"
)

// Provider abstracts the host environment's capture surface
// (camera/microphone and screen acquisition).
type Provider interface {
	// CaptureUserMedia opens a camera/microphone stream with the requested
	// track kinds.
	CaptureUserMedia(ctx context.Context, audio, video bool) (*Stream, error)
	// CaptureDisplay opens a screen-capture stream (video only).
	CaptureDisplay(ctx context.Context) (*Stream, error)
}

// ErrPermissionDenied indicates the user or platform denied device access
var ErrPermissionDenied = errors.New("media: permission denied")

// DeviceProvider is the in-process capture surface backing a call session.
// Browser clients own the physical devices; the service holds proxy tracks
// whose enabled/stopped state mirrors the client's. Denied flags reflect
// permission state reported by the client at attach time.
type DeviceProvider struct {
	// AudioDenied and VideoDenied mark device classes the client could not
	// acquire. ScreenDenied marks screen capture as unavailable.
	AudioDenied  bool
	VideoDenied  bool
	ScreenDenied bool
}

// CaptureUserMedia opens proxy tracks for the requested kinds, failing the
// whole acquisition if any requested device class is denied.
func (p *DeviceProvider) CaptureUserMedia(ctx context.Context, audio, video bool) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if audio && p.AudioDenied {
		return nil, ErrPermissionDenied
	}
	if video && p.VideoDenied {
		return nil, ErrPermissionDenied
	}

	stream := NewStream(SourceCamera)
	if audio {
		stream.AddTrack(NewTrack(TrackKindAudio, "microphone"))
	}
	if video {
		stream.AddTrack(NewTrack(TrackKindVideo, "camera"))
	}
	return stream, nil
}

// CaptureDisplay opens a proxy screen-capture stream
func (p *DeviceProvider) CaptureDisplay(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.ScreenDenied {
		return nil, ErrPermissionDenied
	}
	return NewStream(SourceScreen, NewTrack(TrackKindVideo, "screen")), nil
}

// AcquireResult describes the outcome of the tiered local-media acquisition
type AcquireResult struct {
	Stream    *Stream
	AudioOnly bool
}

// AcquireLocalMedia opens the local capture with graceful fallback:
// audio+video first, then audio only, then failure.
func AcquireLocalMedia(ctx context.Context, p Provider) (*AcquireResult, error) {
	stream, err := p.CaptureUserMedia(ctx, true, true)
	if err == nil {
		return &AcquireResult{Stream: stream}, nil
	}

	stream, audioErr := p.CaptureUserMedia(ctx, true, false)
	if audioErr == nil {
		return &AcquireResult{Stream: stream, AudioOnly: true}, nil
	}

	return nil, err
}
