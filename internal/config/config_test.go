package config

import (
	"os"
	"testing"
	"time"

	"github.com/nirvana-ai/voice-relay/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "GEMINI_MODEL", "MURF_VOICE_ID", "MURF_STYLE",
		"STT_SAMPLE_RATE", "TTS_SAMPLE_RATE", "AUDIO_DRAIN_TIMEOUT_SECONDS",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.GeminiModel != "gemini-2.0-flash" {
		t.Errorf("unexpected default model %s", cfg.GeminiModel)
	}
	if cfg.MurfVoiceID != "en-US-natalie" {
		t.Errorf("unexpected default voice %s", cfg.MurfVoiceID)
	}
	if cfg.STTSampleRate != 16000 || cfg.TTSSampleRate != 44100 {
		t.Errorf("unexpected sample rates %d/%d", cfg.STTSampleRate, cfg.TTSSampleRate)
	}
	if cfg.DrainTimeout != 60*time.Second {
		t.Errorf("expected 60s drain timeout, got %s", cfg.DrainTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("AUDIO_DRAIN_TIMEOUT_SECONDS", "15")
	os.Setenv("STT_SAMPLE_RATE", "8000")
	defer os.Unsetenv("AUDIO_DRAIN_TIMEOUT_SECONDS")
	defer os.Unsetenv("STT_SAMPLE_RATE")

	cfg := Load()

	if cfg.DrainTimeout != 15*time.Second {
		t.Errorf("expected 15s drain timeout, got %s", cfg.DrainTimeout)
	}
	if cfg.STTSampleRate != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.STTSampleRate)
	}
}

func TestResolveCredentials(t *testing.T) {
	cfg := &Config{
		AssemblyAIAPIKey: "default-aai",
		GeminiAPIKey:     "default-gemini",
		MurfAPIKey:       "default-murf",
	}

	tests := []struct {
		name   string
		client domain.ClientConfig
		want   Credentials
	}{
		{
			name:   "all defaults",
			client: domain.ClientConfig{},
			want:   Credentials{AssemblyAI: "default-aai", Gemini: "default-gemini", Murf: "default-murf"},
		},
		{
			name:   "client overrides one key",
			client: domain.ClientConfig{GeminiAPIKey: "client-gemini"},
			want:   Credentials{AssemblyAI: "default-aai", Gemini: "client-gemini", Murf: "default-murf"},
		},
		{
			name: "client overrides everything",
			client: domain.ClientConfig{
				AssemblyAIAPIKey: "a",
				GeminiAPIKey:     "g",
				MurfAPIKey:       "m",
				TavilyAPIKey:     "t",
			},
			want: Credentials{AssemblyAI: "a", Gemini: "g", Murf: "m", Tavily: "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.ResolveCredentials(tt.client)
			if got != tt.want {
				t.Errorf("ResolveCredentials() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
