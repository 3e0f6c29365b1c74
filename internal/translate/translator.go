package translate

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Beusted/talk-to-me/internal/language"
	"github.com/Beusted/talk-to-me/internal/logging"
	"github.com/Beusted/talk-to-me/internal/media"
)

const queueCapacity = 128

// SpeechPublisher synthesizes a translated utterance into the session's
// outbound audio track.
type SpeechPublisher interface {
	Publish(ctx context.Context, text string)
	Close()
}

// Request is one final transcript to translate, carrying the track and
// speaker the resulting caption is attributed to.
type Request struct {
	Text                string
	TrackID             string
	ParticipantIdentity string
}

// Translator translates final transcripts into one target language and
// publishes the captions. Requests are drained one at a time by a single
// consumer, so captions and synthesized audio are published in the order the
// transcripts were finalized, regardless of engine latency.
type Translator struct {
	lang       language.Language
	ttsEnabled bool

	engine   Engine
	captions media.CaptionPublisher
	speech   SpeechPublisher

	queue  chan Request
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config wires a translator's collaborators.
type Config struct {
	Language   language.Language
	TTSEnabled bool
	Engine     Engine
	Captions   media.CaptionPublisher
	Speech     SpeechPublisher // required when TTSEnabled
}

// NewTranslator creates a translator and starts its consumer.
func NewTranslator(parent context.Context, cfg Config) *Translator {
	ctx, cancel := context.WithCancel(parent)
	t := &Translator{
		lang:       cfg.Language,
		ttsEnabled: cfg.TTSEnabled,
		engine:     cfg.Engine,
		captions:   cfg.Captions,
		speech:     cfg.Speech,
		queue:      make(chan Request, queueCapacity),
		ctx:        ctx,
		cancel:     cancel,
	}

	t.wg.Add(1)
	go t.drain()

	logging.Info(logging.CategoryTranslate, "translator created language=%s tts=%v", t.lang.Code, t.ttsEnabled)
	return t
}

// Language returns the target language.
func (t *Translator) Language() language.Language {
	return t.lang
}

// TTSEnabled reports whether translated utterances are also synthesized.
func (t *Translator) TTSEnabled() bool {
	return t.ttsEnabled
}

// Enqueue submits a transcript for translation. A full queue drops the
// utterance; there is no retry.
func (t *Translator) Enqueue(req Request) {
	select {
	case t.queue <- req:
	default:
		logging.Warning(logging.CategoryTranslate, "queue full, dropping utterance language=%s", t.lang.Code)
	}
}

// Close stops the consumer and releases the speech publisher's track.
// In-flight work is abandoned.
func (t *Translator) Close() {
	t.cancel()
	t.wg.Wait()
	if t.speech != nil {
		t.speech.Close()
	}
}

func (t *Translator) drain() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case req := <-t.queue:
			t.translate(req)
		}
	}
}

// systemPrompt builds the fixed instruction for this target language.
func (t *Translator) systemPrompt() string {
	return fmt.Sprintf(
		"You are a translator for language: %s. "+
			"Your only response should be the exact translation of the input text to %s. "+
			"Preserve the speaker's wording; do not summarize, answer, or add commentary. "+
			"For example, if the target language is Spanish and the input is 'Hello, how are you?', respond only with 'Hola, ¿cómo estás?'.",
		t.lang.Name, t.lang.Name,
	)
}

// translate runs one utterance end to end: translation, caption publish and,
// when enabled, synthesis. Failures are logged and the utterance is dropped.
func (t *Translator) translate(req Request) {
	events, err := t.engine.StreamTranslation(t.ctx, t.systemPrompt(), req.Text)
	if err != nil {
		logging.Error(logging.CategoryTranslate, "translation request failed language=%s: %v", t.lang.Code, err)
		return
	}

	var translated string
	for ev := range events {
		if ev.Err != nil {
			logging.Error(logging.CategoryTranslate, "translation stream failed language=%s: %v", t.lang.Code, ev.Err)
			return
		}
		if ev.Done {
			break
		}
		translated += ev.Delta
	}

	segment := media.CaptionSegment{
		ID:       uuid.NewString(),
		Text:     translated,
		Language: t.lang.Name,
		Final:    true,
	}
	if err := t.captions.PublishCaptions(t.ctx, req.ParticipantIdentity, req.TrackID, []media.CaptionSegment{segment}); err != nil {
		logging.Error(logging.CategoryTranslate, "caption publish failed language=%s: %v", t.lang.Code, err)
		return
	}

	if t.ttsEnabled && t.speech != nil {
		t.speech.Publish(t.ctx, translated)
	}
}
