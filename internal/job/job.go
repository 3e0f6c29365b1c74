package job

import (
	"context"
	"encoding/json"
	"fmt"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/Beusted/talk-to-me/internal/config"
	"github.com/Beusted/talk-to-me/internal/language"
	"github.com/Beusted/talk-to-me/internal/logging"
	"github.com/Beusted/talk-to-me/internal/media"
	"github.com/Beusted/talk-to-me/internal/session"
	"github.com/Beusted/talk-to-me/internal/stt"
	"github.com/Beusted/talk-to-me/internal/synth"
	"github.com/Beusted/talk-to-me/internal/translate"
)

// Job is a single room assignment: it connects to the LiveKit room, runs the
// translation session against it and tears everything down when the job
// context ends or the room disconnects.
type Job struct {
	JobID    string
	RoomName string
	Token    string
	URL      string
	Config   *config.Config
}

// Run executes the job. It blocks until the context is cancelled.
func (j *Job) Run(ctx context.Context) error {
	logging.Info(logging.CategoryJob, "starting job jobID=%s room=%s", j.JobID, j.RoomName)

	sttEngine := stt.NewDeepgramEngine(j.Config.DeepgramAPIKey, j.Config.DeepgramModel)

	translationEngine, err := translate.NewOpenAIEngine(translate.OpenAIConfig{
		APIKey:  j.Config.OpenAIAPIKey,
		BaseURL: j.Config.OpenAIBaseURL,
		Model:   j.Config.TranslationModel,
	})
	if err != nil {
		return fmt.Errorf("create translation engine: %w", err)
	}

	synthesisEngine, err := synth.NewOpenAIEngine(synth.OpenAIConfig{
		APIKey:  j.Config.OpenAIAPIKey,
		BaseURL: j.Config.OpenAIBaseURL,
		Model:   j.Config.SynthesisModel,
		Voice:   j.Config.SynthesisVoice,
	})
	if err != nil {
		return fmt.Errorf("create synthesis engine: %w", err)
	}

	// Set before connecting so early callbacks find it; callbacks guard
	// against the window before the controller exists.
	var controller *session.Controller

	callbacks := &lksdk.RoomCallback{
		OnDisconnected: func() {
			logging.Info(logging.CategoryJob, "disconnected from room jobID=%s", j.JobID)
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if controller != nil {
					controller.OnTrackSubscribed(track, pub, rp)
				}
			},
			OnTrackUnsubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if controller != nil {
					controller.OnTrackUnsubscribed(pub, rp)
				}
			},
			OnAttributesChanged: func(changed map[string]string, p lksdk.Participant) {
				if controller != nil {
					controller.OnAttributesChanged(changed, p.Identity())
				}
			},
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(j.URL, j.Token, callbacks)
	if err != nil {
		return fmt.Errorf("connect to room: %w", err)
	}
	defer room.Disconnect()

	logging.Info(logging.CategoryJob, "connected to room room=%s identity=%s", room.Name(), room.LocalParticipant.Identity())

	publisher := media.NewRoomPublisher(room)

	factory := func(ctx context.Context, lang language.Language, ttsEnabled bool) session.Translator {
		var speech translate.SpeechPublisher
		if ttsEnabled {
			speech = synth.NewPublisher(lang, synthesisEngine, publisher)
		}
		return translate.NewTranslator(ctx, translate.Config{
			Language:   lang,
			TTSEnabled: ttsEnabled,
			Engine:     translationEngine,
			Captions:   publisher,
			Speech:     speech,
		})
	}

	controller = session.NewController(ctx, session.Config{
		SourceLanguage: j.Config.SourceLanguage,
		NewTranslator:  factory,
		STT:            sttEngine,
		STTSampleRate:  j.Config.STTSampleRate,
		Captions:       publisher,
	})
	defer controller.Close()

	if err := room.RegisterRpcMethod("get/languages", func(data lksdk.RpcInvocationData) (string, error) {
		payload, err := json.Marshal(language.List())
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}); err != nil {
		logging.Warning(logging.CategoryJob, "failed to register get/languages RPC: %v", err)
	}

	// Pick up audio tracks that were published before we connected.
	for _, p := range room.GetRemoteParticipants() {
		for _, pub := range p.TrackPublications() {
			if pub.Kind() != lksdk.TrackKindAudio {
				continue
			}
			remotePub, ok := pub.(*lksdk.RemoteTrackPublication)
			if !ok {
				continue
			}
			if !remotePub.IsSubscribed() {
				remotePub.SetSubscribed(true)
				continue // OnTrackSubscribed fires once the track arrives
			}
			if track := remotePub.Track(); track != nil {
				if remoteTrack, ok := track.(*webrtc.TrackRemote); ok {
					controller.OnTrackSubscribed(remoteTrack, remotePub, p)
				}
			}
		}
		// Apply any attribute state the participant already carries.
		if attrs := p.Attributes(); len(attrs) > 0 {
			controller.OnAttributesChanged(attrs, p.Identity())
		}
	}

	<-ctx.Done()
	logging.Info(logging.CategoryJob, "context cancelled, exiting jobID=%s", j.JobID)

	// Disconnect first so live track reads unblock, then tear the session
	// down. The deferred calls become no-ops.
	room.Disconnect()
	controller.Close()
	return nil
}
