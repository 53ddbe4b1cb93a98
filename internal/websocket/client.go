package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nirvana-ai/voice-relay/domain"
	"github.com/nirvana-ai/voice-relay/domain/entities"
	"github.com/nirvana-ai/voice-relay/domain/repositories"
	"github.com/nirvana-ai/voice-relay/usecase"
)

const statusConnected = "Connected to transcription service."

// Client is one websocket connection: it relays binary audio upstream to
// transcription and pipes pipeline events back down as JSON text frames.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound text frames.
	send chan []byte

	sendMu     sync.Mutex
	sendClosed bool

	id     string
	logger *zap.Logger

	// Set once the config message has been processed.
	session       *entities.Session
	responder     *usecase.Responder
	transcription repositories.TranscriptionStream
}

var _ usecase.Relay = (*Client)(nil)

// HandleWebSocket handles websocket requests from the peer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	clientID := uuid.NewString()
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     clientID,
		logger: logger.With(zap.String("clientID", clientID)),
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// Send queues a server message for delivery. It never blocks: when the client
// cannot keep up or is already gone the message is dropped.
func (c *Client) Send(message domain.ServerMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("Failed to marshal server message", zap.Error(err))
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}

	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Dropping message for slow client", zap.String("type", message.Type))
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection into the pipeline.
// The first text frame must be a config message; everything after that is
// either a control frame or binary audio.
func (c *Client) readPump() {
	defer func() {
		c.teardown()
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	configured := false
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if !configured {
				if !c.handleConfig(message) {
					return
				}
				configured = true
				continue
			}
			c.handleControl(message)

		case websocket.BinaryMessage:
			if !configured {
				c.Send(domain.NewErrorMessage("First message must be a config message."))
				return
			}
			if err := c.transcription.SendAudio(message); err != nil {
				c.logger.Warn("Failed to forward audio chunk", zap.Error(err))
			}

		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps queued frames to the websocket connection. It owns all
// writes and closes the connection once the send channel has been drained.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleConfig processes the mandatory first message: resolve credentials,
// build the per-connection adapters and open the transcription stream. A
// false return is fatal for the connection.
func (c *Client) handleConfig(message []byte) bool {
	var clientConfig domain.ClientConfig
	if err := json.Unmarshal(message, &clientConfig); err != nil || clientConfig.Type != domain.MessageTypeConfig {
		c.Send(domain.NewErrorMessage("First message must be a config message."))
		return false
	}

	creds := c.hub.config.ResolveCredentials(clientConfig)
	if creds.AssemblyAI == "" {
		c.Send(domain.NewErrorMessage("AssemblyAI API key is required."))
		return false
	}

	// Missing Gemini or Murf keys are not fatal here; each response attempt
	// reports them instead.
	var llm repositories.LargeLanguageModel
	if creds.Gemini != "" {
		model, err := c.hub.services.NewLanguageModel(context.Background(), creds.Gemini)
		if err != nil {
			c.logger.Error("Failed to initialize language model", zap.Error(err))
		} else {
			llm = model
		}
	}

	var synthesizer repositories.SpeechSynthesizer
	if creds.Murf != "" {
		tts, err := c.hub.services.NewSynthesizer(creds.Murf)
		if err != nil {
			c.logger.Error("Failed to initialize speech synthesis", zap.Error(err))
		} else {
			synthesizer = tts
		}
	}

	transcriber, err := c.hub.services.NewTranscriber(creds.AssemblyAI)
	if err != nil {
		c.logger.Error("Failed to initialize transcription", zap.Error(err))
		c.Send(domain.NewErrorMessage("Failed to initialize transcription."))
		return false
	}

	stream, err := transcriber.OpenStream(context.Background(), repositories.StreamConfig{
		SampleRate:  c.hub.config.STTSampleRate,
		FormatTurns: true,
	})
	if err != nil {
		c.logger.Error("Failed to connect to transcription service", zap.Error(err))
		c.Send(domain.NewErrorMessage("Failed to connect to transcription service."))
		return false
	}

	c.session = entities.NewSession()
	c.responder = usecase.NewResponder(c.session, llm, synthesizer, c, c.hub.config.DrainTimeout, c.logger)
	c.transcription = stream

	go c.consumeTranscription(stream)

	c.Send(domain.NewStatusMessage(statusConnected))
	c.logger.Info("Client configured, transcription stream open")
	return true
}

// handleControl processes text frames after configuration. Malformed or
// unknown frames are logged and dropped; they never kill the connection.
func (c *Client) handleControl(message []byte) {
	var control domain.ClientControl
	if err := json.Unmarshal(message, &control); err != nil {
		c.logger.Warn("Ignoring malformed client message", zap.Error(err))
		return
	}

	switch control.Type {
	case domain.MessageTypePing:
		c.Send(domain.NewPongMessage())
	case domain.MessageTypeConfig:
		c.logger.Warn("Ignoring repeated config message")
	default:
		c.logger.Warn("Unknown client message type", zap.String("type", control.Type))
	}
}

// consumeTranscription relays transcription events: every accepted finalized
// turn goes to the client first and then starts a response. Partial,
// unformatted and duplicate turns are dropped by the session.
func (c *Client) consumeTranscription(stream repositories.TranscriptionStream) {
	for event := range stream.Events() {
		switch event.Type {
		case repositories.TranscriptionBegin:
			c.logger.Debug("Transcription session began")

		case repositories.TranscriptionTurn:
			turn := event.Turn
			text := strings.TrimSpace(turn.Transcript)
			if !c.session.AcceptTranscript(turn.Transcript, turn.EndOfTurn, turn.Formatted) {
				if turn.EndOfTurn && turn.Formatted && text != "" && text == c.session.LastTranscript() {
					c.logger.Info("Duplicate turn detected, ignoring", zap.String("transcript", text))
				}
				continue
			}
			c.Send(domain.NewTranscriptionMessage(text))
			c.responder.Submit(text)

		case repositories.TranscriptionTermination:
			c.logger.Info("Transcription session terminated")

		case repositories.TranscriptionError:
			c.logger.Error("Transcription stream error", zap.Error(event.Err))
			c.Send(domain.NewErrorMessage("Transcription service error."))
		}
	}
}

func (c *Client) teardown() {
	if c.responder != nil {
		c.responder.Shutdown()
	}
	if c.transcription != nil {
		c.transcription.Close()
	}
}
