package synth

import (
	"context"
	"fmt"

	"github.com/Beusted/talk-to-me/internal/language"
	"github.com/Beusted/talk-to-me/internal/logging"
	"github.com/Beusted/talk-to-me/internal/media"
)

// Publisher streams synthesized speech into a published audio track. The
// track is created lazily on the first chunk of the first utterance, because
// the engine's real sample rate and channel count are unknown until then.
// Once negotiated the format is fixed: later chunks reporting a different
// format never re-create the track.
type Publisher struct {
	lang   language.Language
	engine Engine
	tracks media.TrackPublisher

	writer     media.AudioWriter
	sampleRate int
	channels   int
}

// NewPublisher creates a publisher for one target language. No track is
// published until the first synthesized chunk arrives.
func NewPublisher(lang language.Language, engine Engine, tracks media.TrackPublisher) *Publisher {
	return &Publisher{lang: lang, engine: engine, tracks: tracks}
}

// TrackName is the unique per-language name of the published track.
func (p *Publisher) TrackName() string {
	return fmt.Sprintf("translation-%s", p.lang.Code)
}

// Negotiated reports the fixed output format, or ok=false before the first
// chunk has been seen.
func (p *Publisher) Negotiated() (sampleRate, channels int, ok bool) {
	if p.writer == nil {
		return 0, 0, false
	}
	return p.sampleRate, p.channels, true
}

// Publish synthesizes the text and writes every frame into the track in
// emission order, returning once synthesis completes. Failures are logged;
// an already-published track stays intact and later calls try again.
func (p *Publisher) Publish(ctx context.Context, text string) {
	if text == "" {
		return
	}

	chunks, err := p.engine.Synthesize(ctx, text)
	if err != nil {
		logging.Error(logging.CategorySynth, "synthesis request failed language=%s: %v", p.lang.Code, err)
		return
	}

	mismatchLogged := false
	for chunk := range chunks {
		if chunk.Err != nil {
			logging.Error(logging.CategorySynth, "synthesis stream failed language=%s: %v", p.lang.Code, chunk.Err)
			return
		}

		if p.writer == nil {
			writer, err := p.tracks.PublishAudioTrack(ctx, p.TrackName(), chunk.SampleRate, chunk.Channels)
			if err != nil {
				logging.Error(logging.CategorySynth, "track publish failed language=%s: %v", p.lang.Code, err)
				return
			}
			p.writer = writer
			p.sampleRate = chunk.SampleRate
			p.channels = chunk.Channels
		} else if (chunk.SampleRate != p.sampleRate || chunk.Channels != p.channels) && !mismatchLogged {
			mismatchLogged = true
			logging.Warning(logging.CategorySynth,
				"engine format changed after negotiation language=%s negotiated=%d/%d got=%d/%d",
				p.lang.Code, p.sampleRate, p.channels, chunk.SampleRate, chunk.Channels)
		}

		if err := p.writer.WriteFrame(chunk.PCM); err != nil {
			logging.Error(logging.CategorySynth, "frame write failed language=%s: %v", p.lang.Code, err)
			return
		}
	}
}

// Close tears down the published track, if any.
func (p *Publisher) Close() {
	if p.writer != nil {
		p.writer.Close()
		p.writer = nil
	}
}
