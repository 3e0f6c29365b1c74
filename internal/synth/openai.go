package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine synthesizes speech via an OpenAI-compatible speech endpoint.
// It requests WAV output so the real sample rate and channel count can be
// read from the stream header before any PCM is emitted.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	voice  string
}

// OpenAIConfig configures the synthesis engine.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// NewOpenAIEngine creates an engine from the given config.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key")
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	conf.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(conf),
		model:  cfg.Model,
		voice:  cfg.Voice,
	}, nil
}

// Synthesize requests speech for the text and streams it back as 20 ms PCM
// chunks tagged with the format parsed from the WAV header.
func (e *OpenAIEngine) Synthesize(ctx context.Context, text string) (<-chan Chunk, error) {
	resp, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(e.model),
		Input:          text,
		Voice:          openai.SpeechVoice(e.voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk, 8)
	go func() {
		defer close(ch)
		defer resp.Close()

		format, err := parseWAVHeader(resp)
		if err != nil {
			ch <- Chunk{Err: fmt.Errorf("parse synthesis header: %w", err)}
			return
		}

		// 20ms frames
		frameBytes := format.SampleRate / 50 * format.Channels * 2
		buf := make([]byte, frameBytes)
		for {
			n, err := io.ReadFull(resp, buf)
			if n > 0 {
				ch <- Chunk{
					PCM:        pcmBytesToSamples(buf[:n-n%2]),
					SampleRate: format.SampleRate,
					Channels:   format.Channels,
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return
				}
				ch <- Chunk{Err: fmt.Errorf("read synthesis audio: %w", err)}
				return
			}
		}
	}()
	return ch, nil
}
