package usecase

import "strings"

// SentenceBuffer incrementally splits an append-only text stream into complete
// sentences. Speech synthesis quality and latency are tuned for sentence-sized
// input, so the language model's token-sized fragments are accumulated here and
// released one sentence at a time.
type SentenceBuffer struct {
	buffer strings.Builder
}

func NewSentenceBuffer() *SentenceBuffer {
	return &SentenceBuffer{}
}

// Feed appends a fragment and returns any sentences completed by it, in order.
// A sentence is complete at terminal punctuation followed by whitespace; the
// trailing piece is always held back because it may still grow. Whitespace-only
// pieces are dropped.
func (b *SentenceBuffer) Feed(fragment string) []string {
	b.buffer.WriteString(fragment)

	content := b.buffer.String()
	var sentences []string

	lastEnd := 0
	for i := 0; i+1 < len(content); i++ {
		if !isTerminalPunct(content[i]) || !isWhitespace(content[i+1]) {
			continue
		}
		sentence := strings.TrimSpace(content[lastEnd : i+1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		lastEnd = i + 1
	}

	if lastEnd > 0 {
		b.buffer.Reset()
		b.buffer.WriteString(content[lastEnd:])
	}

	return sentences
}

// Flush returns the trailing fragment, trimmed, and clears the buffer. It
// returns "" when nothing is pending.
func (b *SentenceBuffer) Flush() string {
	remainder := strings.TrimSpace(b.buffer.String())
	b.buffer.Reset()
	return remainder
}

// Pending returns the held-back text without consuming it.
func (b *SentenceBuffer) Pending() string {
	return b.buffer.String()
}

func isTerminalPunct(c byte) bool {
	return c == '.' || c == '?' || c == '!'
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
