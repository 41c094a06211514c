package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAcquireLocalMedia tests the full audio+video acquisition
func TestAcquireLocalMedia(t *testing.T) {
	result, err := AcquireLocalMedia(context.Background(), &DeviceProvider{})
	require.NoError(t, err)
	assert.False(t, result.AudioOnly)
	assert.Len(t, result.Stream.AudioTracks(), 1)
	assert.Len(t, result.Stream.VideoTracks(), 1)
	assert.Equal(t, SourceCamera, result.Stream.Source())
}

// TestAcquireLocalMedia_AudioOnlyFallback tests the camera-denied tier
func TestAcquireLocalMedia_AudioOnlyFallback(t *testing.T) {
	result, err := AcquireLocalMedia(context.Background(), &DeviceProvider{VideoDenied: true})
	require.NoError(t, err)
	assert.True(t, result.AudioOnly)
	assert.Len(t, result.Stream.AudioTracks(), 1)
	assert.Empty(t, result.Stream.VideoTracks())
}

// TestAcquireLocalMedia_AllDenied tests total acquisition failure
func TestAcquireLocalMedia_AllDenied(t *testing.T) {
	result, err := AcquireLocalMedia(context.Background(), &DeviceProvider{AudioDenied: true, VideoDenied: true})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

// TestTrackEnd tests that the ended handler fires exactly once
func TestTrackEnd(t *testing.T) {
	track := NewTrack(TrackKindVideo, "screen")

	fired := 0
	track.OnEnded(func() { fired++ })

	track.End()
	track.End()

	assert.Equal(t, 1, fired)
	assert.True(t, track.Stopped())
}

// TestTrackClone tests independent enabled state on a cloned track
func TestTrackClone(t *testing.T) {
	track := NewTrack(TrackKindAudio, "microphone")
	clone := track.Clone()

	track.SetEnabled(false)
	assert.True(t, clone.Enabled())
	assert.Equal(t, TrackKindAudio, clone.Kind())
	assert.Equal(t, "microphone", clone.Label())
}

// TestStreamStop tests that stopping a stream releases all tracks
func TestStreamStop(t *testing.T) {
	stream := NewStream(SourceCamera,
		NewTrack(TrackKindAudio, "microphone"),
		NewTrack(TrackKindVideo, "camera"),
	)

	stream.Stop()

	for _, track := range stream.Tracks() {
		assert.True(t, track.Stopped())
	}
}
