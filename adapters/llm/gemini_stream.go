package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/nirvana-ai/voice-relay/domain/entities"
	"github.com/nirvana-ai/voice-relay/domain/repositories"
)

// personaPrompt wraps the bare transcript with the assistant's persona. The
// plain-text instruction matters: anything the model emits goes straight to
// speech synthesis, where markdown would be read aloud.
const personaPrompt = `You are Nirvana, an AI voice assistant who is extremely caring, supportive, and always very excited to help.

Your personality:
- Speak with a lot of warmth, positivity, and energy.
- Always sound like you truly care about the user's feelings and needs.
- Be highly enthusiastic and encouraging.
- You should feel like a best friend who is always cheering for the user.

Context about you:
- Your creator is Sanskar Soni, a computer science student from Indore whose main hobby is watching podcasts.
- Mention this info only if the user asks about you or your creator.

Continue the conversation based on the provided chat history. The user has just said: %q

Your response should be kind, uplifting, and very excited.
IMPORTANT: Do not use any markdown formatting. Provide only plain text.`

// StreamChat starts one generation for the transcript on top of the given
// history and returns its fragment stream.
func (g *GeminiLLM) StreamChat(ctx context.Context, history []entities.Turn, transcript string) (repositories.ChatStream, error) {
	contents := convertHistory(history)
	prompt := fmt.Sprintf(personaPrompt, transcript)
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxOutputTokens),
	}

	stream := &geminiStream{chunks: make(chan string, 8)}

	go func() {
		defer close(stream.chunks)

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				stream.err = fmt.Errorf("gemini stream: %w", err)
				return
			}

			text := responseText(resp)
			if text == "" {
				continue
			}

			select {
			case stream.chunks <- text:
			case <-ctx.Done():
				stream.err = ctx.Err()
				return
			}
		}
	}()

	g.logger.Debug("Started Gemini generation",
		zap.String("model", g.model),
		zap.Int("historyTurns", len(history)))

	return stream, nil
}

// geminiStream adapts the genai response iterator to a channel of fragments.
type geminiStream struct {
	chunks chan string
	err    error
}

func (s *geminiStream) Chunks() <-chan string {
	return s.chunks
}

func (s *geminiStream) Err() error {
	return s.err
}

// convertHistory maps conversation turns to Gemini contents.
func convertHistory(history []entities.Turn) []*genai.Content {
	var contents []*genai.Content
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == entities.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return contents
}

// responseText concatenates the text parts of one streamed response.
func responseText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text
}
