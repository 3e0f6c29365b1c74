package translate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beusted/talk-to-me/internal/language"
	"github.com/Beusted/talk-to-me/internal/media"
)

type fakeEngine struct {
	mu      sync.Mutex
	calls   []string
	respond func(call int, text string) []TokenEvent
	gates   map[int]chan struct{} // call index -> gate released before responding
}

func (e *fakeEngine) StreamTranslation(ctx context.Context, systemPrompt, text string) (<-chan TokenEvent, error) {
	e.mu.Lock()
	call := len(e.calls)
	e.calls = append(e.calls, text)
	gate := e.gates[call]
	e.mu.Unlock()

	ch := make(chan TokenEvent, 8)
	go func() {
		defer close(ch)
		if gate != nil {
			<-gate
		}
		for _, ev := range e.respond(call, text) {
			ch <- ev
		}
	}()
	return ch, nil
}

type captureCaptions struct {
	mu       sync.Mutex
	captions []media.CaptionSegment
	identity string
	trackID  string
	err      error
	notify   chan struct{}
}

func newCaptureCaptions() *captureCaptions {
	return &captureCaptions{notify: make(chan struct{}, 16)}
}

func (c *captureCaptions) PublishCaptions(ctx context.Context, identity, trackID string, segments []media.CaptionSegment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.captions = append(c.captions, segments...)
	c.identity = identity
	c.trackID = trackID
	c.notify <- struct{}{}
	return nil
}

func (c *captureCaptions) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.captions))
	for _, s := range c.captions {
		out = append(out, s.Text)
	}
	return out
}

type captureSpeech struct {
	mu    sync.Mutex
	texts []string
}

func (s *captureSpeech) Publish(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *captureSpeech) Close() {}

func (s *captureSpeech) published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func waitCaption(t *testing.T, c *captureCaptions) {
	t.Helper()
	select {
	case <-c.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for caption publish")
	}
}

func spanish(t *testing.T) language.Language {
	t.Helper()
	l, err := language.Resolve("es")
	require.NoError(t, err)
	return l
}

func TestTranslateAccumulatesStreamedTokens(t *testing.T) {
	engine := &fakeEngine{respond: func(int, string) []TokenEvent {
		return []TokenEvent{{Delta: "Hola, "}, {Delta: "¿cómo estás?"}, {Done: true}}
	}}
	captions := newCaptureCaptions()
	speech := &captureSpeech{}

	tr := NewTranslator(context.Background(), Config{
		Language:   spanish(t),
		TTSEnabled: true,
		Engine:     engine,
		Captions:   captions,
		Speech:     speech,
	})
	defer tr.Close()

	tr.Enqueue(Request{Text: "Hello, how are you?", TrackID: "TR_1", ParticipantIdentity: "host"})
	waitCaption(t, captions)

	require.Len(t, captions.captions, 1)
	seg := captions.captions[0]
	assert.Equal(t, "Hola, ¿cómo estás?", seg.Text)
	assert.Equal(t, "Spanish", seg.Language)
	assert.True(t, seg.Final)
	assert.NotEmpty(t, seg.ID)
	assert.Zero(t, seg.StartTime)
	assert.Zero(t, seg.EndTime)

	// Captions carry the original speaker, not the agent.
	assert.Equal(t, "host", captions.identity)
	assert.Equal(t, "TR_1", captions.trackID)

	assert.Eventually(t, func() bool {
		return len(speech.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Hola, ¿cómo estás?"}, speech.published())
}

func TestEmptyStreamPublishesEmptyCaption(t *testing.T) {
	engine := &fakeEngine{respond: func(int, string) []TokenEvent {
		return []TokenEvent{{Done: true}}
	}}
	captions := newCaptureCaptions()

	tr := NewTranslator(context.Background(), Config{
		Language: spanish(t),
		Engine:   engine,
		Captions: captions,
	})
	defer tr.Close()

	tr.Enqueue(Request{Text: "hello", TrackID: "TR_1", ParticipantIdentity: "host"})
	waitCaption(t, captions)

	require.Len(t, captions.captions, 1)
	assert.Equal(t, "", captions.captions[0].Text)
	assert.True(t, captions.captions[0].Final)
}

func TestEngineFailureDropsUtterance(t *testing.T) {
	engine := &fakeEngine{respond: func(call int, _ string) []TokenEvent {
		if call == 0 {
			return []TokenEvent{{Delta: "partial"}, {Err: errors.New("engine down")}}
		}
		return []TokenEvent{{Delta: "ok"}, {Done: true}}
	}}
	captions := newCaptureCaptions()
	speech := &captureSpeech{}

	tr := NewTranslator(context.Background(), Config{
		Language:   spanish(t),
		TTSEnabled: true,
		Engine:     engine,
		Captions:   captions,
		Speech:     speech,
	})
	defer tr.Close()

	tr.Enqueue(Request{Text: "first"})
	tr.Enqueue(Request{Text: "second"})
	waitCaption(t, captions)

	// Only the second utterance survives; the failed one is gone for good.
	assert.Equal(t, []string{"ok"}, captions.texts())
	assert.Eventually(t, func() bool {
		return len(speech.published()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ok"}, speech.published())
}

func TestCaptionFailureSkipsSynthesis(t *testing.T) {
	engine := &fakeEngine{respond: func(int, string) []TokenEvent {
		return []TokenEvent{{Delta: "hola"}, {Done: true}}
	}}
	captions := newCaptureCaptions()
	captions.err = errors.New("publish failed")
	speech := &captureSpeech{}

	tr := NewTranslator(context.Background(), Config{
		Language:   spanish(t),
		TTSEnabled: true,
		Engine:     engine,
		Captions:   captions,
		Speech:     speech,
	})
	defer tr.Close()

	tr.Enqueue(Request{Text: "hello"})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, speech.published())
}

func TestCaptionsPublishedInSubmissionOrder(t *testing.T) {
	gate := make(chan struct{})
	engine := &fakeEngine{
		gates: map[int]chan struct{}{0: gate},
		respond: func(call int, text string) []TokenEvent {
			return []TokenEvent{{Delta: text + "-translated"}, {Done: true}}
		},
	}
	captions := newCaptureCaptions()

	tr := NewTranslator(context.Background(), Config{
		Language: spanish(t),
		Engine:   engine,
		Captions: captions,
	})
	defer tr.Close()

	// Both transcripts arrive before the first translation completes.
	tr.Enqueue(Request{Text: "T1"})
	tr.Enqueue(Request{Text: "T2"})
	close(gate)

	waitCaption(t, captions)
	waitCaption(t, captions)

	assert.Equal(t, []string{"T1-translated", "T2-translated"}, captions.texts())
}
