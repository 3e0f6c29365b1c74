// Package translate turns final transcripts into translated captions, one
// translator per active target language.
package translate

import "context"

// TokenEvent is one chunk of a streamed translation.
type TokenEvent struct {
	Delta string
	Done  bool
	Err   error
}

// Engine streams a translation for a single utterance. The prompt context is
// built fresh per request; engines hold no conversation state.
type Engine interface {
	StreamTranslation(ctx context.Context, systemPrompt, text string) (<-chan TokenEvent, error)
}
