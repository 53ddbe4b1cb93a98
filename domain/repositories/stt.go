package repositories

import "context"

// SpeechToText abstracts a realtime speech recognition service.
type SpeechToText interface {
	// OpenStream establishes a streaming transcription session. Audio is
	// pushed with SendAudio; recognition events arrive on Events.
	OpenStream(ctx context.Context, config StreamConfig) (TranscriptionStream, error)
}

// StreamConfig configures a streaming transcription session.
type StreamConfig struct {
	SampleRate  int
	FormatTurns bool
}

// TranscriptionStream is one live transcription session. The events channel is
// the only path from the upstream receiver goroutine into the connection's
// event loop; consumers never share state with the receiver directly.
type TranscriptionStream interface {
	// SendAudio forwards a raw audio frame upstream.
	SendAudio(data []byte) error
	// Events delivers session events in arrival order. The channel is closed
	// after a termination event or when the stream is torn down.
	Events() <-chan TranscriptionEvent
	Close() error
}

// TranscriptionEventType discriminates TranscriptionEvent.
type TranscriptionEventType string

const (
	TranscriptionBegin       TranscriptionEventType = "begin"
	TranscriptionTurn        TranscriptionEventType = "turn"
	TranscriptionTermination TranscriptionEventType = "termination"
	TranscriptionError       TranscriptionEventType = "error"
)

// TranscriptionEvent is one event from the recognition session. Turn is set
// for turn events, Err for error events.
type TranscriptionEvent struct {
	Type TranscriptionEventType
	Turn *TurnEvent
	Err  error
}

// TurnEvent carries one recognition result. A transcript is finalized when
// both EndOfTurn and Formatted are set.
type TurnEvent struct {
	Transcript string
	EndOfTurn  bool
	Formatted  bool
}
