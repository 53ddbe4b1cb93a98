package domain

// Server-to-client message types. The client protocol is a closed set: the
// relay only ever emits one of these.
const (
	MessageTypeStatus         = "status"
	MessageTypeError          = "error"
	MessageTypeTranscription  = "transcription"
	MessageTypeLLMChunk       = "llm_chunk"
	MessageTypeAudioStart     = "audio_start"
	MessageTypeAudio          = "audio"
	MessageTypeAudioEnd       = "audio_end"
	MessageTypeAudioInterrupt = "audio_interrupt"
	MessageTypePong           = "pong"
)

// Client-to-server message types carried as text frames. Binary frames are raw
// audio and have no envelope.
const (
	MessageTypeConfig = "config"
	MessageTypePing   = "ping"
)

// ServerMessage is a normalized event relayed to the client. Which fields are
// populated depends on Type; unused fields are omitted from the JSON.
type ServerMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Text      string `json:"text,omitempty"`
	EndOfTurn bool   `json:"end_of_turn,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ClientConfig is the first message a client must send after connecting.
// Missing keys fall back to the process-wide defaults.
type ClientConfig struct {
	Type             string `json:"type"`
	AssemblyAIAPIKey string `json:"assemblyai_api_key,omitempty"`
	GeminiAPIKey     string `json:"gemini_api_key,omitempty"`
	MurfAPIKey       string `json:"murf_api_key,omitempty"`
	TavilyAPIKey     string `json:"tavily_api_key,omitempty"`
}

// ClientControl is any later text frame from the client (currently only ping).
type ClientControl struct {
	Type string `json:"type"`
}

func NewStatusMessage(message string) ServerMessage {
	return ServerMessage{Type: MessageTypeStatus, Message: message}
}

func NewErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, Message: message}
}

func NewTranscriptionMessage(text string) ServerMessage {
	return ServerMessage{Type: MessageTypeTranscription, Text: text, EndOfTurn: true}
}

func NewLLMChunkMessage(chunk string) ServerMessage {
	return ServerMessage{Type: MessageTypeLLMChunk, Data: chunk}
}

func NewAudioStartMessage() ServerMessage {
	return ServerMessage{Type: MessageTypeAudioStart}
}

// NewAudioMessage carries one base64-encoded audio chunk.
func NewAudioMessage(data string) ServerMessage {
	return ServerMessage{Type: MessageTypeAudio, Data: data}
}

func NewAudioEndMessage() ServerMessage {
	return ServerMessage{Type: MessageTypeAudioEnd}
}

func NewAudioInterruptMessage() ServerMessage {
	return ServerMessage{Type: MessageTypeAudioInterrupt}
}

func NewPongMessage() ServerMessage {
	return ServerMessage{Type: MessageTypePong}
}
