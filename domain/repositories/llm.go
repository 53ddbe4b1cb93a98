package repositories

import (
	"context"

	"github.com/nirvana-ai/voice-relay/domain/entities"
)

// LargeLanguageModel abstracts a chat model with incremental output.
type LargeLanguageModel interface {
	// StreamChat starts one generation for the given transcript on top of the
	// conversation history. The returned stream is finite, not restartable,
	// and must be consumed exactly once.
	StreamChat(ctx context.Context, history []entities.Turn, transcript string) (ChatStream, error)
}

// ChatStream is a lazily produced sequence of text fragments.
type ChatStream interface {
	// Chunks delivers fragments in generation order and is closed when the
	// stream ends, whether normally or not.
	Chunks() <-chan string
	// Err reports why the stream ended. It is only meaningful after Chunks
	// has been closed; nil means the generation completed.
	Err() error
}
