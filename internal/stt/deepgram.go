package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Beusted/talk-to-me/internal/logging"
)

const (
	deepgramBaseURL   = "wss://api.deepgram.com/v1/listen"
	keepAliveInterval = 5 * time.Second
)

// DeepgramEngine creates live transcription streams against Deepgram's
// streaming API.
type DeepgramEngine struct {
	APIKey  string
	Model   string
	BaseURL string // overridable for tests
}

// NewDeepgramEngine returns an engine using the given API key and model.
func NewDeepgramEngine(apiKey, model string) *DeepgramEngine {
	return &DeepgramEngine{APIKey: apiKey, Model: model, BaseURL: deepgramBaseURL}
}

// NewStream dials a live transcription websocket for the given audio format.
func (e *DeepgramEngine) NewStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse deepgram URL: %w", err)
	}

	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	if e.Model != "" {
		q.Set("model", e.Model)
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+e.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial deepgram: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		conn:   conn,
		events: make(chan Event, 16),
		ctx:    streamCtx,
		cancel: cancel,
	}

	g, gctx := errgroup.WithContext(streamCtx)
	s.group = g
	g.Go(func() error { return s.readLoop() })
	g.Go(func() error { return s.keepAliveLoop(gctx) })

	return s, nil
}

type deepgramStream struct {
	conn    *websocket.Conn
	events  chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	writeMu sync.Mutex
	closed  sync.Once
}

func (s *deepgramStream) Push(pcm []byte) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

func (s *deepgramStream) Events() <-chan Event {
	return s.events
}

// Close signals end of audio, tears the connection down and releases the
// reader. Safe to call more than once.
func (s *deepgramStream) Close() error {
	s.closed.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()

		s.cancel()
		_ = s.conn.Close()
		_ = s.group.Wait()
	})
	return nil
}

func (s *deepgramStream) readLoop() error {
	defer close(s.events)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				logging.Warning(logging.CategoryTranscribe, "deepgram read error: %v", err)
			}
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, ok := parseDeepgramMessage(data)
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
}

func (s *deepgramStream) keepAliveLoop(ctx context.Context) error {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			s.writeMu.Unlock()
			if err != nil {
				return err
			}
		}
	}
}

type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramMessage extracts a transcript event from one server message.
// Metadata and empty transcripts produce no event.
func parseDeepgramMessage(data []byte) (Event, bool) {
	var msg deepgramResult
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, false
	}
	if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
		return Event{}, false
	}

	text := msg.Channel.Alternatives[0].Transcript
	if text == "" {
		return Event{}, false
	}

	kind := KindInterim
	if msg.IsFinal {
		kind = KindFinal
	}
	return Event{Kind: kind, Text: text}, true
}
