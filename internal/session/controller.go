// Package session owns the per-room translation pipeline: routing mode,
// the registry of live translators, and one transcription task per
// subscribed audio track.
package session

import (
	"context"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/Beusted/talk-to-me/internal/language"
	"github.com/Beusted/talk-to-me/internal/logging"
	"github.com/Beusted/talk-to-me/internal/media"
	"github.com/Beusted/talk-to-me/internal/stt"
	"github.com/Beusted/talk-to-me/internal/translate"
)

// Translator is the controller's view of a per-language translator.
type Translator interface {
	Language() language.Language
	TTSEnabled() bool
	Enqueue(translate.Request)
	Close()
}

// TranslatorFactory creates a translator for a target language. ttsEnabled
// is fixed at creation time.
type TranslatorFactory func(ctx context.Context, lang language.Language, ttsEnabled bool) Translator

// Config wires a controller's collaborators.
type Config struct {
	// SourceLanguage is the code of the language the host speaks; captions
	// for it come from the recognition engine, not a translator.
	SourceLanguage string
	NewTranslator  TranslatorFactory
	STT            stt.Engine
	STTSampleRate  int
	Captions       media.CaptionPublisher
}

// Controller owns session-wide state: the routing mode, the designated
// input/output languages, the language→translator registry and the live
// transcription tasks. All mutation happens under one mutex so no caller
// ever observes a half-applied update (for example an output language set
// without its translator provisioned).
type Controller struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	mode        RoutingMode
	inputLang   string
	outputLang  string
	translators map[string]Translator
	tasks       map[string]*transcriptionTask // keyed by track SID
}

// NewController creates a controller in broadcast mode with no translators.
func NewController(parent context.Context, cfg Config) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		mode:        ModeBroadcast,
		translators: make(map[string]Translator),
		tasks:       make(map[string]*transcriptionTask),
	}
}

// OnAttributesChanged applies one attribute-change notification from the
// transport. Unknown language codes are logged and skipped; nothing here is
// session-fatal.
func (c *Controller) OnAttributesChanged(changed map[string]string, participantIdentity string) {
	u := parseAttributes(changed)

	c.mu.Lock()
	defer c.mu.Unlock()

	if u.mode != nil && *u.mode != c.mode {
		logging.Info(logging.CategorySession, "routing mode changed from=%s to=%s participant=%s", c.mode, *u.mode, participantIdentity)
		c.mode = *u.mode
	}

	switch c.mode {
	case ModeBroadcast:
		if u.captionsLanguage != "" && u.captionsLanguage != c.cfg.SourceLanguage {
			c.ensureTranslatorLocked(u.captionsLanguage, false)
		}
	case ModePointToPoint:
		if u.inputLanguage != "" {
			if c.ensureTranslatorLocked(u.inputLanguage, true) {
				c.inputLang = u.inputLanguage
			}
		}
		if u.outputLanguage != "" {
			if c.ensureTranslatorLocked(u.outputLanguage, true) {
				c.outputLang = u.outputLanguage
			}
		}
	}
}

// ensureTranslatorLocked provisions a translator for the code if none
// exists. Idempotent: an existing translator is left as-is even when
// ttsEnabled differs. Returns false only for unsupported codes.
func (c *Controller) ensureTranslatorLocked(code string, ttsEnabled bool) bool {
	if _, exists := c.translators[code]; exists {
		return true
	}

	lang, err := language.Resolve(code)
	if err != nil {
		logging.Warning(logging.CategorySession, "unsupported language code=%q", code)
		return false
	}

	c.translators[code] = c.cfg.NewTranslator(c.ctx, lang, ttsEnabled)
	logging.Info(logging.CategorySession, "translator provisioned language=%s tts=%v mode=%s", code, ttsEnabled, c.mode)
	return true
}

// routeFinal dispatches one final transcript according to the routing mode
// at dispatch time. Delivery to each translator preserves submission order;
// the translators themselves run independently.
func (c *Controller) routeFinal(text, trackID, participantIdentity string) {
	c.mu.Lock()
	var targets []Translator
	switch c.mode {
	case ModeBroadcast:
		targets = make([]Translator, 0, len(c.translators))
		for _, t := range c.translators {
			targets = append(targets, t)
		}
	case ModePointToPoint:
		if t, ok := c.translators[c.outputLang]; ok {
			targets = []Translator{t}
		}
	}
	mode := c.mode
	outputLang := c.outputLang
	c.mu.Unlock()

	if len(targets) == 0 {
		logging.Info(logging.CategorySession, "no translator for transcript, dropping mode=%s output=%q", mode, outputLang)
		return
	}

	req := translate.Request{Text: text, TrackID: trackID, ParticipantIdentity: participantIdentity}
	for _, t := range targets {
		t.Enqueue(req)
	}
}

// OnTrackSubscribed starts a transcription task for a newly subscribed
// audio track. Non-audio tracks are ignored.
func (c *Controller) OnTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}

	sid := pub.SID()
	identity := rp.Identity()

	c.mu.Lock()
	if _, exists := c.tasks[sid]; exists {
		c.mu.Unlock()
		logging.Warning(logging.CategorySession, "task already running for track sid=%s", sid)
		return
	}
	c.mu.Unlock()

	task, err := newTranscriptionTask(c.ctx, taskConfig{
		trackSID:       sid,
		identity:       identity,
		sourceLanguage: c.cfg.SourceLanguage,
		engine:         c.cfg.STT,
		sampleRate:     c.cfg.STTSampleRate,
		captions:       c.cfg.Captions,
		onFinal: func(text string) {
			c.routeFinal(text, sid, identity)
		},
	})
	if err != nil {
		logging.Error(logging.CategorySession, "failed to start transcription task sid=%s: %v", sid, err)
		return
	}

	c.mu.Lock()
	c.tasks[sid] = task
	c.mu.Unlock()

	task.Start(track)
	logging.Info(logging.CategorySession, "transcription task started sid=%s participant=%s", sid, identity)
}

// OnTrackUnsubscribed stops and removes the track's transcription task.
func (c *Controller) OnTrackUnsubscribed(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	sid := pub.SID()

	c.mu.Lock()
	task, exists := c.tasks[sid]
	if exists {
		delete(c.tasks, sid)
	}
	c.mu.Unlock()

	if exists {
		task.Stop()
		logging.Info(logging.CategorySession, "transcription task stopped sid=%s participant=%s", sid, rp.Identity())
	}
}

// Close tears the session down: all tasks stop (closing their recognition
// streams) and all translators are released.
func (c *Controller) Close() {
	c.cancel()

	c.mu.Lock()
	tasks := make([]*transcriptionTask, 0, len(c.tasks))
	for _, t := range c.tasks {
		tasks = append(tasks, t)
	}
	c.tasks = make(map[string]*transcriptionTask)

	translators := make([]Translator, 0, len(c.translators))
	for _, t := range c.translators {
		translators = append(translators, t)
	}
	c.translators = make(map[string]Translator)
	c.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
	for _, t := range translators {
		t.Close()
	}
	logging.Info(logging.CategorySession, "session controller closed")
}
