// Package media defines the boundary to the media transport: publishing
// caption segments and outbound audio tracks into the session. The rest of
// the pipeline only sees these interfaces; the LiveKit implementations live
// in livekit.go.
package media

import "context"

// CaptionSegment is one transcription segment published into the session.
type CaptionSegment struct {
	ID       string
	Text     string
	Language string
	Final    bool
	// Start/end times are a placeholder contract; consumers do not use them
	// for display timing today.
	StartTime uint64
	EndTime   uint64
}

// CaptionPublisher publishes caption segments attributed to a participant
// and track. Translated captions must carry the original speaker's identity,
// never the agent's.
type CaptionPublisher interface {
	PublishCaptions(ctx context.Context, participantIdentity, trackID string, segments []CaptionSegment) error
}

// AudioWriter accepts PCM frames for one published audio track.
type AudioWriter interface {
	// WriteFrame writes one frame of interleaved int16 PCM.
	WriteFrame(pcm []int16) error
	Close()
}

// TrackPublisher publishes a named outbound audio track with a fixed format.
type TrackPublisher interface {
	PublishAudioTrack(ctx context.Context, name string, sampleRate, channels int) (AudioWriter, error)
}
