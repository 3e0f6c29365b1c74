package translate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine streams chat completions from an OpenAI-compatible endpoint.
type OpenAIEngine struct {
	client *openai.Client
	model  string
}

// OpenAIConfig configures the translation engine.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional; for compatible or self-hosted servers
	Model   string
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
	return &OpenAIEngine{client: openai.NewClientWithConfig(conf), model: cfg.Model}, nil
}

// StreamTranslation sends a one-shot prompt and streams the completion back
// as token events. The channel closes after a Done or error event.
func (e *OpenAIEngine) StreamTranslation(ctx context.Context, systemPrompt, text string) (<-chan TokenEvent, error) {
	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Stream: true,
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan TokenEvent, 32)
	go func() {
		defer close(ch)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					ch <- TokenEvent{Done: true}
					return
				}
				ch <- TokenEvent{Err: err}
				return
			}
			for _, choice := range resp.Choices {
				ch <- TokenEvent{Delta: choice.Delta.Content}
			}
		}
	}()
	return ch, nil
}
