// Package synth streams synthesized speech for translated utterances into a
// lazily created outbound audio track.
package synth

import "context"

// Chunk is one frame of synthesized audio. SampleRate and Channels describe
// the engine's actual output format and are present on every chunk.
type Chunk struct {
	PCM        []int16
	SampleRate int
	Channels   int
	Err        error
}

// Engine synthesizes one utterance as a stream of audio chunks. The channel
// closes when synthesis completes or fails.
type Engine interface {
	Synthesize(ctx context.Context, text string) (<-chan Chunk, error)
}
