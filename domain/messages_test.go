package domain

import (
	"encoding/json"
	"testing"
)

func TestServerMessageWireFormat(t *testing.T) {
	tests := []struct {
		name    string
		message ServerMessage
		want    string
	}{
		{
			name:    "status",
			message: NewStatusMessage("Connected to transcription service."),
			want:    `{"type":"status","message":"Connected to transcription service."}`,
		},
		{
			name:    "error",
			message: NewErrorMessage("AssemblyAI API key is required."),
			want:    `{"type":"error","message":"AssemblyAI API key is required."}`,
		},
		{
			name:    "transcription",
			message: NewTranscriptionMessage("Hello there."),
			want:    `{"type":"transcription","text":"Hello there.","end_of_turn":true}`,
		},
		{
			name:    "llm chunk",
			message: NewLLMChunkMessage("Hi! "),
			want:    `{"type":"llm_chunk","data":"Hi! "}`,
		},
		{
			name:    "audio start",
			message: NewAudioStartMessage(),
			want:    `{"type":"audio_start"}`,
		},
		{
			name:    "audio",
			message: NewAudioMessage("bXAzZGF0YQ=="),
			want:    `{"type":"audio","data":"bXAzZGF0YQ=="}`,
		},
		{
			name:    "audio end",
			message: NewAudioEndMessage(),
			want:    `{"type":"audio_end"}`,
		},
		{
			name:    "audio interrupt",
			message: NewAudioInterruptMessage(),
			want:    `{"type":"audio_interrupt"}`,
		},
		{
			name:    "pong",
			message: NewPongMessage(),
			want:    `{"type":"pong"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.message)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("wire format mismatch:\n got %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestClientConfigParsing(t *testing.T) {
	payload := `{
		"type": "config",
		"assemblyai_api_key": "aai",
		"gemini_api_key": "gem",
		"murf_api_key": "murf",
		"tavily_api_key": "tav"
	}`

	var cfg ClientConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if cfg.Type != MessageTypeConfig {
		t.Errorf("type = %q", cfg.Type)
	}
	if cfg.AssemblyAIAPIKey != "aai" || cfg.GeminiAPIKey != "gem" ||
		cfg.MurfAPIKey != "murf" || cfg.TavilyAPIKey != "tav" {
		t.Errorf("keys not parsed: %+v", cfg)
	}

	// Omitted keys stay empty so the defaults apply.
	var sparse ClientConfig
	if err := json.Unmarshal([]byte(`{"type":"config"}`), &sparse); err != nil {
		t.Fatalf("unmarshal sparse: %v", err)
	}
	if sparse.AssemblyAIAPIKey != "" {
		t.Errorf("expected empty key, got %q", sparse.AssemblyAIAPIKey)
	}
}
