package tts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nirvana-ai/voice-relay/domain/repositories"
)

const (
	defaultStreamingURL = "wss://api.murf.ai/v1/speech/stream-input"
	defaultVoiceID      = "en-US-natalie"
	defaultStyle        = "Conversational"
	defaultSampleRate   = 44100
	defaultChannelType  = "MONO"
	defaultFormat       = "MP3"
)

// MurfConfig holds configuration for the Murf streaming TTS adapter.
// Required fields:
// - APIKey: the Murf API key for this session
// Optional fields with defaults:
// - StreamingURL: the stream-input websocket endpoint
// - VoiceID: the voice to synthesize with (default: "en-US-natalie")
// - Style: the speaking style (default: "Conversational")
// - SampleRate: output sample rate (default: 44100)
// - ChannelType: MONO or STEREO (default: "MONO")
// - Format: output encoding (default: "MP3")
type MurfConfig struct {
	APIKey       string
	StreamingURL string
	VoiceID      string
	Style        string
	SampleRate   int
	ChannelType  string
	Format       string
}

// ValidateMurfConfig validates the MurfConfig.
func ValidateMurfConfig(config MurfConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("murf API key is required")
	}
	if config.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	return nil
}

// MurfTTS implements SpeechSynthesizer against Murf's stream-input websocket
// API. Each response gets its own session and context id; sentence units are
// sent in order and audio chunks come back in order.
type MurfTTS struct {
	apiKey       string
	streamingURL string
	voiceID      string
	style        string
	sampleRate   int
	channelType  string
	format       string
	logger       *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*MurfTTS)(nil)

// NewMurfTTS creates a new Murf TTS instance.
func NewMurfTTS(config MurfConfig, logger *zap.Logger) (*MurfTTS, error) {
	if err := ValidateMurfConfig(config); err != nil {
		return nil, err
	}

	streamingURL := config.StreamingURL
	if streamingURL == "" {
		streamingURL = defaultStreamingURL
	}
	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	style := config.Style
	if style == "" {
		style = defaultStyle
	}
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	channelType := config.ChannelType
	if channelType == "" {
		channelType = defaultChannelType
	}
	format := config.Format
	if format == "" {
		format = defaultFormat
	}

	return &MurfTTS{
		apiKey:       config.APIKey,
		streamingURL: streamingURL,
		voiceID:      voiceID,
		style:        style,
		sampleRate:   sampleRate,
		channelType:  channelType,
		format:       format,
		logger:       logger,
	}, nil
}

// murfVoiceConfig is the one-time configuration message opening a context.
type murfVoiceConfig struct {
	VoiceConfig murfVoiceSettings `json:"voice_config"`
	ContextID   string            `json:"context_id"`
}

type murfVoiceSettings struct {
	VoiceID string `json:"voiceId"`
	Style   string `json:"style"`
}

// murfTextMessage is one sentence unit tagged with the session's context id.
type murfTextMessage struct {
	Text      string `json:"text"`
	End       bool   `json:"end"`
	ContextID string `json:"context_id"`
}

// murfAudioMessage is one message from the service: an audio payload and/or a
// final marker.
type murfAudioMessage struct {
	Audio string `json:"audio"`
	Final bool   `json:"final"`
}

// OpenSession dials the streaming endpoint, sends the voice configuration
// under a fresh context id and starts the audio receiver. Cancelling ctx tears
// the connection down.
func (m *MurfTTS) OpenSession(ctx context.Context) (repositories.SynthesisSession, error) {
	u, err := url.Parse(m.streamingURL)
	if err != nil {
		return nil, fmt.Errorf("parse streaming URL: %w", err)
	}
	q := u.Query()
	q.Set("api-key", m.apiKey)
	q.Set("sample_rate", strconv.Itoa(m.sampleRate))
	q.Set("channel_type", m.channelType)
	q.Set("format", m.format)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("murf connect: %w", repositories.ErrUnauthorized)
		}
		return nil, fmt.Errorf("murf connect: %w", err)
	}

	contextID := fmt.Sprintf("voice-relay-context-%s", uuid.NewString())

	session := &murfSession{
		conn:      conn,
		contextID: contextID,
		events:    make(chan repositories.SynthesisEvent, 16),
		done:      make(chan struct{}),
		ctx:       ctx,
		logger:    m.logger,
	}

	configMsg := murfVoiceConfig{
		VoiceConfig: murfVoiceSettings{VoiceID: m.voiceID, Style: m.style},
		ContextID:   contextID,
	}
	if err := conn.WriteJSON(configMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send voice config: %w", err)
	}

	go session.receive()
	go session.watchContext()

	m.logger.Info("Murf synthesis session opened",
		zap.String("voiceID", m.voiceID),
		zap.String("contextID", contextID))

	return session, nil
}

type murfSession struct {
	conn      *websocket.Conn
	contextID string
	events    chan repositories.SynthesisEvent
	done      chan struct{}
	ctx       context.Context
	logger    *zap.Logger

	writeMu   sync.Mutex
	finalSent bool

	closeMu sync.Mutex
	closed  bool

	errMu sync.Mutex
	err   error
}

// Speak sends one sentence unit. Units must arrive in sentence order; final
// marks the terminal unit after which the sender side is done.
func (s *murfSession) Speak(text string, final bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.finalSent {
		return fmt.Errorf("synthesis session already finalized")
	}
	if final {
		s.finalSent = true
	}

	msg := murfTextMessage{Text: text, End: final, ContextID: s.contextID}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send synthesis request: %w", err)
	}
	return nil
}

func (s *murfSession) Events() <-chan repositories.SynthesisEvent {
	return s.events
}

func (s *murfSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *murfSession) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	return s.conn.Close()
}

func (s *murfSession) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func (s *murfSession) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// watchContext tears the connection down when the owning task is cancelled,
// which unblocks the receiver's read.
func (s *murfSession) watchContext() {
	select {
	case <-s.ctx.Done():
		s.conn.Close()
	case <-s.done:
	}
}

// deliver hands an event to the consumer, giving up if the owning task has
// been cancelled so the receiver never blocks on an abandoned channel.
func (s *murfSession) deliver(ev repositories.SynthesisEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// receive consumes upstream audio messages until the final marker or the
// connection is gone. An unexpected close before the final marker is reported
// as a synthetic final event so callers can still signal end of audio.
func (s *murfSession) receive() {
	defer close(s.events)
	defer close(s.done)

	for {
		var msg murfAudioMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.ctx.Err() != nil || s.isClosed() {
				// Cancelled or deliberately closed: the owner handles any
				// remaining signalling.
				return
			}

			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				s.setErr(fmt.Errorf("murf stream: %w", repositories.ErrUnauthorized))
			} else {
				s.setErr(fmt.Errorf("murf stream: %w", err))
			}

			s.logger.Warn("Murf connection closed unexpectedly", zap.Error(err))
			s.deliver(repositories.SynthesisEvent{Final: true})
			return
		}

		if msg.Audio == "" && !msg.Final {
			continue
		}

		if !s.deliver(repositories.SynthesisEvent{Audio: msg.Audio, Final: msg.Final}) {
			return
		}
		if msg.Final {
			return
		}
	}
}
