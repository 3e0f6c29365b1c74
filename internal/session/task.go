package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	soxr "github.com/zaf/resample"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/Beusted/talk-to-me/internal/logging"
	"github.com/Beusted/talk-to-me/internal/media"
	"github.com/Beusted/talk-to-me/internal/stt"
)

const trackSampleRate = 48000 // LiveKit delivers Opus at 48kHz mono

// transcriptionTask pulls audio from one subscribed track and pushes it into
// its own recognition stream: RTP depacketize, Opus decode, resample to the
// recognition rate. It owns the stream exclusively and guarantees its close
// on every exit path.
type transcriptionTask struct {
	trackSID       string
	identity       string
	sourceLanguage string
	captions       media.CaptionPublisher
	onFinal        func(text string)

	stream       stt.Stream
	decoder      *opus.Decoder
	resampler    *soxr.Resampler
	resamplerBuf *bytes.Buffer
	resamplerMu  sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type taskConfig struct {
	trackSID       string
	identity       string
	sourceLanguage string
	engine         stt.Engine
	sampleRate     int
	captions       media.CaptionPublisher
	onFinal        func(text string)
}

func newTranscriptionTask(parent context.Context, cfg taskConfig) (*transcriptionTask, error) {
	decoder, err := opus.NewDecoder(trackSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	// The resampler writes into the same buffer we read output from.
	resamplerBuf := &bytes.Buffer{}
	resampler, err := soxr.New(resamplerBuf, float64(trackSampleRate), float64(cfg.sampleRate), 1, soxr.I16, soxr.HighQ)
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	stream, err := cfg.engine.NewStream(ctx, stt.StreamConfig{
		SampleRate: cfg.sampleRate,
		Channels:   1,
		Language:   cfg.sourceLanguage,
	})
	if err != nil {
		cancel()
		resampler.Close()
		return nil, fmt.Errorf("open recognition stream: %w", err)
	}

	return &transcriptionTask{
		trackSID:       cfg.trackSID,
		identity:       cfg.identity,
		sourceLanguage: cfg.sourceLanguage,
		captions:       cfg.captions,
		onFinal:        cfg.onFinal,
		stream:         stream,
		decoder:        decoder,
		resampler:      resampler,
		resamplerBuf:   resamplerBuf,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start begins pumping audio and forwarding transcript events.
func (t *transcriptionTask) Start(track *webrtc.TrackRemote) {
	t.wg.Add(2)
	go t.processTrack(track)
	go t.forwardEvents()
}

// Stop cancels the task and closes the recognition stream. Safe to call
// after the task already exited on its own.
func (t *transcriptionTask) Stop() {
	t.cancel()
	_ = t.stream.Close()
	t.wg.Wait()

	t.resamplerMu.Lock()
	t.resampler.Close()
	t.resamplerMu.Unlock()
}

// processTrack reads RTP packets, decodes Opus and feeds resampled PCM into
// the recognition stream.
func (t *transcriptionTask) processTrack(track *webrtc.TrackRemote) {
	defer t.wg.Done()
	defer t.stream.Close()

	buf := make([]byte, 1500)
	rtpPacket := &rtp.Packet{}
	pcm48k := make([]int16, 960) // 20ms @ 48kHz mono

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if t.ctx.Err() == nil {
				logging.Warning(logging.CategoryTranscribe, "track read failed sid=%s: %v", t.trackSID, err)
			}
			return
		}

		if err := rtpPacket.Unmarshal(buf[:n]); err != nil {
			logging.Warning(logging.CategoryTranscribe, "bad RTP packet sid=%s: %v", t.trackSID, err)
			continue
		}
		if len(rtpPacket.Payload) == 0 {
			continue // DTX
		}

		sampleCount, err := t.decoder.Decode(rtpPacket.Payload, pcm48k)
		if err != nil {
			logging.Warning(logging.CategoryTranscribe, "opus decode failed sid=%s: %v", t.trackSID, err)
			continue
		}
		if sampleCount == 0 {
			continue
		}

		resampled, err := t.resample(pcm48k[:sampleCount])
		if err != nil {
			logging.Warning(logging.CategoryTranscribe, "resample failed sid=%s: %v", t.trackSID, err)
			continue
		}
		if len(resampled) == 0 {
			continue // resampler is buffering
		}

		if err := t.stream.Push(resampled); err != nil {
			if t.ctx.Err() == nil {
				logging.Warning(logging.CategoryTranscribe, "audio push failed sid=%s: %v", t.trackSID, err)
			}
			return
		}
	}
}

// resample converts 48kHz samples to recognition-rate little-endian bytes.
func (t *transcriptionTask) resample(samples []int16) ([]byte, error) {
	t.resamplerMu.Lock()
	defer t.resamplerMu.Unlock()

	input := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(input[i*2:], uint16(s))
	}

	t.resamplerBuf.Reset()
	if _, err := t.resampler.Write(input); err != nil {
		return nil, fmt.Errorf("resampler write: %w", err)
	}

	out := t.resamplerBuf.Bytes()
	if len(out) == 0 {
		return nil, nil
	}
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

// forwardEvents publishes native-language captions for every transcript
// event and hands final transcripts to the routing path. Interim captions of
// one utterance share a segment id until the final arrives.
func (t *transcriptionTask) forwardEvents() {
	defer t.wg.Done()

	segmentID := ""
	for ev := range t.stream.Events() {
		if segmentID == "" {
			segmentID = uuid.NewString()
		}

		final := ev.Kind == stt.KindFinal
		segment := media.CaptionSegment{
			ID:       segmentID,
			Text:     ev.Text,
			Language: t.sourceLanguage,
			Final:    final,
		}
		if err := t.captions.PublishCaptions(t.ctx, t.identity, t.trackSID, []media.CaptionSegment{segment}); err != nil {
			logging.Warning(logging.CategoryTranscribe, "native caption publish failed sid=%s: %v", t.trackSID, err)
		}

		if final {
			segmentID = ""
			t.onFinal(ev.Text)
		}
	}
}
