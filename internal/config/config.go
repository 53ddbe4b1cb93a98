package config

import (
	"os"
	"strconv"
	"time"

	"github.com/nirvana-ai/voice-relay/domain"
)

const (
	defaultPort          = "8000"
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultMurfVoiceID   = "en-US-natalie"
	defaultMurfStyle     = "Conversational"
	defaultSTTSampleRate = 16000
	defaultTTSSampleRate = 44100
	defaultDrainTimeout  = 60 * time.Second
)

// Config is the process-wide configuration, resolved once at startup and
// treated as immutable afterwards. API keys here are the fallback defaults;
// each connection may override them in its config message.
type Config struct {
	Port string

	AssemblyAIAPIKey string
	GeminiAPIKey     string
	MurfAPIKey       string
	TavilyAPIKey     string

	GeminiModel string
	MurfVoiceID string
	MurfStyle   string

	STTSampleRate int
	TTSSampleRate int

	// DrainTimeout bounds how long a response waits for trailing audio after
	// the last sentence unit has been sent.
	DrainTimeout time.Duration
}

// Load reads configuration from the environment. Call after godotenv has
// populated it.
func Load() *Config {
	cfg := &Config{
		Port:             os.Getenv("PORT"),
		AssemblyAIAPIKey: os.Getenv("ASSEMBLYAI_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		MurfAPIKey:       os.Getenv("MURF_API_KEY"),
		TavilyAPIKey:     os.Getenv("TAVILY_API_KEY"),
		GeminiModel:      os.Getenv("GEMINI_MODEL"),
		MurfVoiceID:      os.Getenv("MURF_VOICE_ID"),
		MurfStyle:        os.Getenv("MURF_STYLE"),
		STTSampleRate:    defaultSTTSampleRate,
		TTSSampleRate:    defaultTTSSampleRate,
		DrainTimeout:     defaultDrainTimeout,
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = defaultGeminiModel
	}
	if cfg.MurfVoiceID == "" {
		cfg.MurfVoiceID = defaultMurfVoiceID
	}
	if cfg.MurfStyle == "" {
		cfg.MurfStyle = defaultMurfStyle
	}

	if v := os.Getenv("STT_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			cfg.STTSampleRate = rate
		}
	}
	if v := os.Getenv("TTS_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			cfg.TTSSampleRate = rate
		}
	}
	if v := os.Getenv("AUDIO_DRAIN_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			cfg.DrainTimeout = time.Duration(seconds) * time.Second
		}
	}

	return cfg
}

// Credentials are the per-session upstream API keys, immutable for the
// lifetime of a connection.
type Credentials struct {
	AssemblyAI string
	Gemini     string
	Murf       string
	Tavily     string
}

// ResolveCredentials merges client-supplied keys over the process defaults.
func (c *Config) ResolveCredentials(client domain.ClientConfig) Credentials {
	creds := Credentials{
		AssemblyAI: c.AssemblyAIAPIKey,
		Gemini:     c.GeminiAPIKey,
		Murf:       c.MurfAPIKey,
		Tavily:     c.TavilyAPIKey,
	}
	if client.AssemblyAIAPIKey != "" {
		creds.AssemblyAI = client.AssemblyAIAPIKey
	}
	if client.GeminiAPIKey != "" {
		creds.Gemini = client.GeminiAPIKey
	}
	if client.MurfAPIKey != "" {
		creds.Murf = client.MurfAPIKey
	}
	if client.TavilyAPIKey != "" {
		creds.Tavily = client.TavilyAPIKey
	}
	return creds
}
