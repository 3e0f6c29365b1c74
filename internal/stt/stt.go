// Package stt wraps streaming speech-to-text engines. A Stream ingests raw
// PCM and produces an ordered sequence of transcript events until closed.
package stt

import (
	"context"
	"errors"
)

// ErrClosed is returned when audio is pushed into a closed stream.
var ErrClosed = errors.New("stt: stream closed")

// Kind distinguishes provisional from settled transcripts.
type Kind int

const (
	// KindInterim marks a provisional transcript that may still change.
	KindInterim Kind = iota
	// KindFinal marks a settled transcript.
	KindFinal
)

// Event is one transcript event emitted by a recognition stream.
type Event struct {
	Kind Kind
	Text string
}

// StreamConfig describes the audio fed into a stream.
type StreamConfig struct {
	SampleRate int
	Channels   int
	Language   string
}

// Stream is one live recognition session. Events are delivered in the order
// the engine emits them; the channel closes when the stream ends.
type Stream interface {
	// Push feeds little-endian int16 PCM audio.
	Push(pcm []byte) error
	Events() <-chan Event
	// Close shuts the stream down and releases recognition resources.
	// Closing twice is a no-op.
	Close() error
}

// Engine creates recognition streams.
type Engine interface {
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}
