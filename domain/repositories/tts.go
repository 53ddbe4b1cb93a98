package repositories

import (
	"context"
	"errors"
)

// ErrUnauthorized reports that the synthesis service rejected the API key.
var ErrUnauthorized = errors.New("speech synthesis rejected credentials")

// SpeechSynthesizer abstracts a streaming text-to-speech service.
type SpeechSynthesizer interface {
	// OpenSession opens one synthesis session scoped to a single response.
	// Cancelling ctx tears the session down immediately.
	OpenSession(ctx context.Context) (SynthesisSession, error)
}

// SynthesisSession manages one upstream synthesis connection: sentence units
// go in via Speak in order, audio chunks come back on Events in order.
type SynthesisSession interface {
	// Speak submits one sentence unit. final marks the terminal unit of the
	// response; no further Speak calls are allowed after it.
	Speak(text string, final bool) error
	// Events delivers audio events in arrival order. The channel is closed
	// once the final marker is received or the connection is gone.
	Events() <-chan SynthesisEvent
	// Err reports an abnormal session end. Only meaningful after Events has
	// been closed.
	Err() error
	Close() error
}

// SynthesisEvent is one message from the synthesis service: an audio payload,
// a final marker, or both.
type SynthesisEvent struct {
	// Audio is a base64-encoded audio chunk, empty if the message carried
	// only a marker.
	Audio string
	// Final marks the end of audio for this response.
	Final bool
}
