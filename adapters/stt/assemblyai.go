package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nirvana-ai/voice-relay/domain/repositories"
)

const (
	defaultStreamingURL = "wss://streaming.assemblyai.com/v3/ws"
	defaultSampleRate   = 16000
)

// AssemblyAIConfig holds configuration for the AssemblyAI adapter.
// Required fields:
// - APIKey: the AssemblyAI API key for this session
// Optional fields with defaults:
// - StreamingURL: the realtime websocket endpoint (default: AssemblyAI v3)
type AssemblyAIConfig struct {
	APIKey       string
	StreamingURL string
}

// ValidateAssemblyAIConfig validates the AssemblyAIConfig.
func ValidateAssemblyAIConfig(config AssemblyAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("assemblyai API key is required")
	}
	return nil
}

// AssemblyAISTT implements SpeechToText against AssemblyAI's v3 realtime
// websocket API.
type AssemblyAISTT struct {
	apiKey       string
	streamingURL string
	logger       *zap.Logger
}

var _ repositories.SpeechToText = (*AssemblyAISTT)(nil)

// NewAssemblyAISTT creates a new AssemblyAI speech-to-text instance.
func NewAssemblyAISTT(config AssemblyAIConfig, logger *zap.Logger) (*AssemblyAISTT, error) {
	if err := ValidateAssemblyAIConfig(config); err != nil {
		return nil, err
	}

	streamingURL := config.StreamingURL
	if streamingURL == "" {
		streamingURL = defaultStreamingURL
	}

	return &AssemblyAISTT{
		apiKey:       config.APIKey,
		streamingURL: streamingURL,
		logger:       logger,
	}, nil
}

// OpenStream connects to the realtime endpoint and starts the receiver. The
// events channel is fed exclusively by the receiver goroutine, giving callers
// a thread-safe handoff out of the websocket read loop.
func (a *AssemblyAISTT) OpenStream(ctx context.Context, config repositories.StreamConfig) (repositories.TranscriptionStream, error) {
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	u, err := url.Parse(a.streamingURL)
	if err != nil {
		return nil, fmt.Errorf("parse streaming URL: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("format_turns", strconv.FormatBool(config.FormatTurns))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", a.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("assemblyai rejected credentials: %w", err)
		}
		return nil, fmt.Errorf("assemblyai connect: %w", err)
	}

	stream := &assemblyAIStream{
		conn:   conn,
		events: make(chan repositories.TranscriptionEvent, 16),
		logger: a.logger,
	}
	go stream.receive()

	a.logger.Info("AssemblyAI streaming session opened",
		zap.Int("sampleRate", sampleRate),
		zap.Bool("formatTurns", config.FormatTurns))

	return stream, nil
}

type assemblyAIStream struct {
	conn    *websocket.Conn
	events  chan repositories.TranscriptionEvent
	logger  *zap.Logger
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// assemblyAIMessage is the wire shape of v3 server messages. Turn fields are
// only populated for Turn messages.
type assemblyAIMessage struct {
	Type            string `json:"type"`
	Transcript      string `json:"transcript"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
	Error           string `json:"error"`
}

func (s *assemblyAIStream) SendAudio(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isClosed() {
		return fmt.Errorf("transcription stream is closed")
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (s *assemblyAIStream) Events() <-chan repositories.TranscriptionEvent {
	return s.events
}

// Close requests session termination and tears down the connection. The
// receiver goroutine closes the events channel on its way out.
func (s *assemblyAIStream) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.writeMu.Lock()
	// Best effort: the session may already be gone.
	_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *assemblyAIStream) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func (s *assemblyAIStream) receive() {
	defer close(s.events)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.events <- repositories.TranscriptionEvent{
					Type: repositories.TranscriptionError,
					Err:  fmt.Errorf("assemblyai stream: %w", err),
				}
			}
			return
		}

		var msg assemblyAIMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("Ignoring malformed AssemblyAI message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "Begin":
			s.events <- repositories.TranscriptionEvent{Type: repositories.TranscriptionBegin}

		case "Turn":
			s.events <- repositories.TranscriptionEvent{
				Type: repositories.TranscriptionTurn,
				Turn: &repositories.TurnEvent{
					Transcript: msg.Transcript,
					EndOfTurn:  msg.EndOfTurn,
					Formatted:  msg.TurnIsFormatted,
				},
			}

		case "Termination":
			s.events <- repositories.TranscriptionEvent{Type: repositories.TranscriptionTermination}
			return

		case "Error":
			s.events <- repositories.TranscriptionEvent{
				Type: repositories.TranscriptionError,
				Err:  fmt.Errorf("assemblyai: %s", msg.Error),
			}

		default:
			s.logger.Debug("Unknown AssemblyAI message type", zap.String("type", msg.Type))
		}
	}
}
