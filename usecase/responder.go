package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nirvana-ai/voice-relay/domain"
	"github.com/nirvana-ai/voice-relay/domain/entities"
	"github.com/nirvana-ai/voice-relay/domain/repositories"
)

const (
	defaultDrainTimeout = 60 * time.Second

	// cancelAckTimeout bounds how long a new response waits for the prior
	// task to acknowledge cancellation before declaring it superseded.
	cancelAckTimeout = 5 * time.Second
)

// Relay delivers server messages to the connected client. Implementations must
// never block the caller; a slow or gone client is the relay's problem.
type Relay interface {
	Send(message domain.ServerMessage)
}

// Responder runs the response pipeline for one connection: each finalized user
// turn becomes a response task that streams language model output to the
// client while feeding complete sentences to speech synthesis. At most one
// task is active; submitting a new turn interrupts the previous one.
type Responder struct {
	session      *entities.Session
	llm          repositories.LargeLanguageModel
	tts          repositories.SpeechSynthesizer
	relay        Relay
	drainTimeout time.Duration
	logger       *zap.Logger

	mu     sync.Mutex
	task   *responseTask
	closed bool
}

// NewResponder creates a responder for one client session. llm and tts may be
// nil when the corresponding credential is not configured; responses then
// surface an error instead of streaming.
func NewResponder(
	session *entities.Session,
	llm repositories.LargeLanguageModel,
	tts repositories.SpeechSynthesizer,
	relay Relay,
	drainTimeout time.Duration,
	logger *zap.Logger,
) *Responder {
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	return &Responder{
		session:      session,
		llm:          llm,
		tts:          tts,
		relay:        relay,
		drainTimeout: drainTimeout,
		logger:       logger,
	}
}

// responseTask is one in-flight response. Emission is gated so that once the
// task has been superseded nothing it produces reaches the client.
type responseTask struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	relay  Relay

	mu         sync.Mutex
	superseded bool
}

func (t *responseTask) emit(message domain.ServerMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.superseded {
		return false
	}
	t.relay.Send(message)
	return true
}

func (t *responseTask) supersede() {
	t.mu.Lock()
	t.superseded = true
	t.mu.Unlock()
}

// Submit starts a response for a finalized user turn. If a response is still
// in flight it is cancelled first and the client receives a single
// audio_interrupt before anything from the new response.
func (r *Responder) Submit(transcript string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if prev := r.task; prev != nil {
		select {
		case <-prev.done:
			// Finished on its own, nothing to interrupt.
		default:
			r.interrupt(prev)
		}
	}

	history := r.session.History()
	r.session.AppendUserTurn(transcript)

	ctx, cancel := context.WithCancel(context.Background())
	task := &responseTask{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		relay:  r.relay,
	}
	r.task = task

	go r.run(task, history, transcript)
}

// interrupt cancels the in-flight task, waits for it to wind down and then
// tells the client to stop playback. Superseding before the interrupt
// guarantees a stuck task cannot emit after it.
func (r *Responder) interrupt(task *responseTask) {
	task.cancel()

	select {
	case <-task.done:
	case <-time.After(cancelAckTimeout):
		r.logger.Warn("response task did not acknowledge cancellation in time")
	}

	task.supersede()
	r.relay.Send(domain.NewAudioInterruptMessage())
}

// Shutdown cancels any in-flight response. The client is gone, so no
// interrupt is relayed.
func (r *Responder) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.task == nil {
		return
	}

	r.task.cancel()
	select {
	case <-r.task.done:
	case <-time.After(cancelAckTimeout):
		r.logger.Warn("response task did not stop during shutdown")
	}
	r.task.supersede()
	r.task = nil
}

func (r *Responder) run(task *responseTask, history []entities.Turn, transcript string) {
	defer close(task.done)
	// Whatever path run exits through, release the streams owned by this
	// task. Without this an early return after StreamChat would leave the
	// producer goroutine consuming the generation forever.
	defer task.cancel()
	ctx := task.ctx

	if r.llm == nil {
		task.emit(domain.NewErrorMessage("Gemini API key is not configured."))
		return
	}

	chat, err := r.llm.StreamChat(ctx, history, transcript)
	if err != nil {
		r.logger.Error("Failed to start language model response", zap.Error(err))
		task.emit(domain.NewErrorMessage("Failed to get a response from the language model."))
		return
	}

	if r.tts == nil {
		task.emit(domain.NewErrorMessage("Murf API key is not configured."))
		return
	}

	synthesis, err := r.tts.OpenSession(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("Failed to open synthesis session", zap.Error(err))
		if errors.Is(err, repositories.ErrUnauthorized) {
			task.emit(domain.NewErrorMessage("Speech synthesis rejected the Murf API key."))
		} else {
			task.emit(domain.NewErrorMessage("Failed to connect to speech synthesis."))
		}
		return
	}
	defer synthesis.Close()

	audioDone := r.relayAudio(task, synthesis)

	var response strings.Builder
	buffer := NewSentenceBuffer()
	spoke := false
	speakFailed := false

	for chunk := range chat.Chunks() {
		if chunk == "" {
			continue
		}
		task.emit(domain.NewLLMChunkMessage(chunk))
		response.WriteString(chunk)

		if speakFailed {
			continue
		}
		for _, sentence := range buffer.Feed(chunk) {
			if err := synthesis.Speak(sentence, false); err != nil {
				r.logger.Warn("Failed to submit sentence for synthesis", zap.Error(err))
				speakFailed = true
				break
			}
			spoke = true
		}
	}

	if ctx.Err() != nil {
		return
	}

	if err := chat.Err(); err != nil {
		r.logger.Error("Language model stream failed", zap.Error(err))
		task.emit(domain.NewErrorMessage("The language model stream failed. Check the Gemini API key."))
		return
	}

	if remainder := buffer.Flush(); remainder != "" && !speakFailed {
		if err := synthesis.Speak(remainder, true); err != nil {
			r.logger.Warn("Failed to submit final sentence for synthesis", zap.Error(err))
			speakFailed = true
		} else {
			spoke = true
		}
	}

	if spoke {
		select {
		case <-audioDone:
		case <-time.After(r.drainTimeout):
			r.logger.Warn("Timed out waiting for synthesis to drain",
				zap.Duration("timeout", r.drainTimeout))
			synthesis.Close()
		case <-ctx.Done():
			return
		}
	}

	if ctx.Err() == nil && response.Len() > 0 {
		r.session.AppendAssistantTurn(response.String())
	}
}

// relayAudio forwards synthesis output to the client: audio_start before the
// first chunk, audio for each chunk, audio_end at the final marker. The
// returned channel closes when the synthesis event stream ends.
func (r *Responder) relayAudio(task *responseTask, synthesis repositories.SynthesisSession) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		started := false
		for event := range synthesis.Events() {
			if event.Audio != "" {
				if !started {
					started = true
					task.emit(domain.NewAudioStartMessage())
				}
				task.emit(domain.NewAudioMessage(event.Audio))
			}
			if event.Final {
				task.emit(domain.NewAudioEndMessage())
			}
		}

		if err := synthesis.Err(); err != nil && task.ctx.Err() == nil {
			r.logger.Warn("Synthesis session ended abnormally", zap.Error(err))
			if errors.Is(err, repositories.ErrUnauthorized) {
				task.emit(domain.NewErrorMessage("Speech synthesis rejected the Murf API key."))
			}
		}
	}()

	return done
}
