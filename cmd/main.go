package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/nirvana-ai/voice-relay/adapters/llm"
	"github.com/nirvana-ai/voice-relay/adapters/stt"
	"github.com/nirvana-ai/voice-relay/adapters/tts"
	"github.com/nirvana-ai/voice-relay/domain/repositories"
	"github.com/nirvana-ai/voice-relay/internal/api"
	"github.com/nirvana-ai/voice-relay/internal/config"
	"github.com/nirvana-ai/voice-relay/internal/websocket"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load .env if present; real environment wins.
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg := config.Load()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Per-connection adapter factories. Each websocket connection resolves
	// its own credentials and gets fresh upstream clients.
	services := websocket.Services{
		NewTranscriber: func(apiKey string) (repositories.SpeechToText, error) {
			return stt.NewAssemblyAISTT(stt.AssemblyAIConfig{APIKey: apiKey}, logger)
		},
		NewLanguageModel: func(ctx context.Context, apiKey string) (repositories.LargeLanguageModel, error) {
			return llm.NewGeminiLLM(ctx, llm.GeminiConfig{
				APIKey: apiKey,
				Model:  cfg.GeminiModel,
			}, logger)
		},
		NewSynthesizer: func(apiKey string) (repositories.SpeechSynthesizer, error) {
			return tts.NewMurfTTS(tts.MurfConfig{
				APIKey:     apiKey,
				VoiceID:    cfg.MurfVoiceID,
				Style:      cfg.MurfStyle,
				SampleRate: cfg.TTSSampleRate,
			}, logger)
		},
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(cfg, services, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, cfg, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice relay server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
