package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nirvana-ai/voice-relay/domain"
	"github.com/nirvana-ai/voice-relay/domain/entities"
	"github.com/nirvana-ai/voice-relay/domain/repositories"
	"github.com/nirvana-ai/voice-relay/internal/config"
)

// scriptedSTT hands out a single controllable stream so tests can inject
// transcription events and inspect forwarded audio.
type scriptedSTT struct {
	stream *scriptedStream
}

func (s *scriptedSTT) OpenStream(ctx context.Context, cfg repositories.StreamConfig) (repositories.TranscriptionStream, error) {
	return s.stream, nil
}

type scriptedStream struct {
	events chan repositories.TranscriptionEvent

	mu     sync.Mutex
	audio  [][]byte
	closed bool
}

func newScriptedStream() *scriptedStream {
	return &scriptedStream{events: make(chan repositories.TranscriptionEvent, 16)}
}

func (s *scriptedStream) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, append([]byte(nil), data...))
	return nil
}

func (s *scriptedStream) Events() <-chan repositories.TranscriptionEvent {
	return s.events
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *scriptedStream) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

func (s *scriptedStream) emitTurn(transcript string, endOfTurn, formatted bool) {
	s.events <- repositories.TranscriptionEvent{
		Type: repositories.TranscriptionTurn,
		Turn: &repositories.TurnEvent{
			Transcript: transcript,
			EndOfTurn:  endOfTurn,
			Formatted:  formatted,
		},
	}
}

// scriptedLLM replays fixed chunks for every generation.
type scriptedLLM struct {
	chunks []string
}

func (l *scriptedLLM) StreamChat(ctx context.Context, history []entities.Turn, transcript string) (repositories.ChatStream, error) {
	stream := &scriptedChatStream{out: make(chan string, len(l.chunks))}
	for _, chunk := range l.chunks {
		stream.out <- chunk
	}
	close(stream.out)
	return stream, nil
}

type scriptedChatStream struct {
	out chan string
}

func (s *scriptedChatStream) Chunks() <-chan string { return s.out }
func (s *scriptedChatStream) Err() error            { return nil }

// scriptedTTS buffers spoken units and answers with one audio chunk per unit
// plus a final marker once the terminal unit arrives.
type scriptedTTS struct{}

func (f *scriptedTTS) OpenSession(ctx context.Context) (repositories.SynthesisSession, error) {
	return &scriptedSynthesis{events: make(chan repositories.SynthesisEvent, 16)}, nil
}

type scriptedSynthesis struct {
	mu     sync.Mutex
	units  []string
	events chan repositories.SynthesisEvent
	done   bool
}

func (s *scriptedSynthesis) Speak(text string, final bool) error {
	s.mu.Lock()
	s.units = append(s.units, text)
	units := append([]string(nil), s.units...)
	s.mu.Unlock()

	if final {
		for _, unit := range units {
			s.events <- repositories.SynthesisEvent{Audio: "b64:" + unit}
		}
		s.events <- repositories.SynthesisEvent{Final: true}
		s.finish()
	}
	return nil
}

func (s *scriptedSynthesis) Events() <-chan repositories.SynthesisEvent { return s.events }
func (s *scriptedSynthesis) Err() error                                { return nil }

func (s *scriptedSynthesis) Close() error {
	s.finish()
	return nil
}

func (s *scriptedSynthesis) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.events)
	}
}

type testEnv struct {
	server *httptest.Server
	stream *scriptedStream
	logs   *observer.ObservedLogs
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(zapcore.NewTee(zaptest.NewLogger(t).Core(), core))
	stream := newScriptedStream()

	services := Services{
		NewTranscriber: func(apiKey string) (repositories.SpeechToText, error) {
			return &scriptedSTT{stream: stream}, nil
		},
		NewLanguageModel: func(ctx context.Context, apiKey string) (repositories.LargeLanguageModel, error) {
			return &scriptedLLM{chunks: []string{"Sure. ", "Happy to help."}}, nil
		},
		NewSynthesizer: func(apiKey string) (repositories.SpeechSynthesizer, error) {
			return &scriptedTTS{}, nil
		},
	}

	hub := NewHub(cfg, services, logger)
	go hub.Run()

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, logger)
	})

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return &testEnv{server: server, stream: stream, logs: logs}
}

func testConfig() *config.Config {
	return &config.Config{
		STTSampleRate: 16000,
		TTSSampleRate: 44100,
		DrainTimeout:  time.Second,
	}
}

func dial(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) domain.ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg domain.ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// readUntil collects messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, messageType string) []domain.ServerMessage {
	t.Helper()
	var messages []domain.ServerMessage
	for {
		msg := readMessage(t, conn)
		messages = append(messages, msg)
		if msg.Type == messageType {
			return messages
		}
	}
}

func configure(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	sendJSON(t, conn, domain.ClientConfig{
		Type:             domain.MessageTypeConfig,
		AssemblyAIAPIKey: "aai-key",
		GeminiAPIKey:     "gemini-key",
		MurfAPIKey:       "murf-key",
	})
	status := readMessage(t, conn)
	if status.Type != domain.MessageTypeStatus || status.Message != statusConnected {
		t.Fatalf("expected connected status, got %+v", status)
	}
}

func TestHandshake_ConfigFirst(t *testing.T) {
	env := newTestEnv(t, testConfig())
	conn := dial(t, env)
	configure(t, conn)
}

func TestHandshake_MissingTranscriptionKey(t *testing.T) {
	env := newTestEnv(t, testConfig())
	conn := dial(t, env)

	sendJSON(t, conn, domain.ClientConfig{Type: domain.MessageTypeConfig})
	msg := readMessage(t, conn)
	if msg.Type != domain.MessageTypeError || !strings.Contains(msg.Message, "AssemblyAI") {
		t.Fatalf("expected AssemblyAI key error, got %+v", msg)
	}

	// The connection is fatal after the error.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err == nil {
		t.Errorf("expected connection close, got %s", raw)
	}
}

func TestHandshake_DefaultKeyFromEnvironment(t *testing.T) {
	cfg := testConfig()
	cfg.AssemblyAIAPIKey = "server-side-key"
	env := newTestEnv(t, cfg)
	conn := dial(t, env)

	// Empty client config falls back to the server-side key.
	sendJSON(t, conn, domain.ClientConfig{Type: domain.MessageTypeConfig})
	status := readMessage(t, conn)
	if status.Type != domain.MessageTypeStatus {
		t.Fatalf("expected status, got %+v", status)
	}
}

func TestHandshake_NonConfigFirstMessageIsFatal(t *testing.T) {
	env := newTestEnv(t, testConfig())
	conn := dial(t, env)

	sendJSON(t, conn, domain.ClientControl{Type: domain.MessageTypePing})
	msg := readMessage(t, conn)
	if msg.Type != domain.MessageTypeError {
		t.Fatalf("expected error for non-config first message, got %+v", msg)
	}
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t, testConfig())
	conn := dial(t, env)
	configure(t, conn)

	sendJSON(t, conn, domain.ClientControl{Type: domain.MessageTypePing})
	msg := readMessage(t, conn)
	if msg.Type != domain.MessageTypePong {
		t.Fatalf("expected pong, got %+v", msg)
	}
}

func TestBinaryAudioForwarded(t *testing.T) {
	env := newTestEnv(t, testConfig())
	conn := dial(t, env)
	configure(t, conn)

	audio := []byte{0x10, 0x20, 0x30}
	if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if frames := env.stream.received(); len(frames) == 1 {
			if string(frames[0]) != string(audio) {
				t.Fatalf("audio mangled in transit: %v", frames[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("audio never reached the transcription stream")
}

func TestFinalizedTurnDrivesPipeline(t *testing.T) {
	env := newTestEnv(t, testConfig())
	conn := dial(t, env)
	configure(t, conn)

	// Partial and unformatted turns must not surface.
	env.stream.emitTurn("what is", false, false)
	env.stream.emitTurn("What is Go?", true, true)

	messages := readUntil(t, conn, domain.MessageTypeAudioEnd)

	if messages[0].Type != domain.MessageTypeTranscription {
		t.Fatalf("expected transcription first, got %+v", messages[0])
	}
	if messages[0].Text != "What is Go?" || !messages[0].EndOfTurn {
		t.Errorf("unexpected transcription payload %+v", messages[0])
	}

	var gotTypes []string
	for _, m := range messages {
		gotTypes = append(gotTypes, m.Type)
	}
	wantTypes := []string{
		domain.MessageTypeTranscription,
		domain.MessageTypeLLMChunk,
		domain.MessageTypeLLMChunk,
		domain.MessageTypeAudioStart,
		domain.MessageTypeAudio,
		domain.MessageTypeAudio,
		domain.MessageTypeAudioEnd,
	}
	if len(gotTypes) != len(wantTypes) {
		t.Fatalf("expected %v, got %v", wantTypes, gotTypes)
	}
	for i := range wantTypes {
		if gotTypes[i] != wantTypes[i] {
			t.Fatalf("expected %v, got %v", wantTypes, gotTypes)
		}
	}
}

func TestDuplicateTurnSuppressed(t *testing.T) {
	env := newTestEnv(t, testConfig())
	conn := dial(t, env)
	configure(t, conn)

	env.stream.emitTurn("Hello.", true, true)
	readUntil(t, conn, domain.MessageTypeAudioEnd)

	// The same finalized transcript again is an upstream re-emission.
	env.stream.emitTurn("Hello.", true, true)
	env.stream.emitTurn("Something new.", true, true)

	messages := readUntil(t, conn, domain.MessageTypeAudioEnd)
	transcriptions := 0
	for _, m := range messages {
		if m.Type == domain.MessageTypeTranscription {
			transcriptions++
			if m.Text != "Something new." {
				t.Errorf("duplicate transcript relayed: %+v", m)
			}
		}
	}
	if transcriptions != 1 {
		t.Errorf("expected 1 transcription, got %d", transcriptions)
	}

	// The suppression itself is recorded, distinguishable from partial or
	// unformatted turns being dropped.
	duplicates := env.logs.FilterMessage("Duplicate turn detected, ignoring")
	if duplicates.Len() != 1 {
		t.Errorf("expected 1 duplicate-suppression log entry, got %d", duplicates.Len())
	}
}
