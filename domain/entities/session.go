package entities

import (
	"strings"
	"sync"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one finalized exchange unit in the conversation history. A turn is
// only ever appended whole; streamed fragments never appear here.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is the per-connection conversation state: the ordered turn history
// and the last transcript accepted as a genuine new turn. It lives from
// connection accept to connection close and is never persisted.
//
// The turn-event consumer and the in-flight response task touch the session
// from different goroutines, so access is guarded internally.
type Session struct {
	mu             sync.Mutex
	history        []Turn
	lastTranscript string
}

func NewSession() *Session {
	return &Session{}
}

// AcceptTranscript decides whether a speech-to-text turn event should start a
// new response. It returns true only for a non-empty, end-of-turn, formatted
// transcript that differs from the last accepted one, and records the
// transcript on acceptance. Rejections have no side effects.
func (s *Session) AcceptTranscript(transcript string, endOfTurn, formatted bool) bool {
	text := strings.TrimSpace(transcript)
	if text == "" || !endOfTurn || !formatted {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if text == s.lastTranscript {
		return false
	}
	s.lastTranscript = text
	return true
}

// LastTranscript returns the last accepted transcript.
func (s *Session) LastTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTranscript
}

// AppendUserTurn adds a completed user turn to the history.
func (s *Session) AppendUserTurn(text string) {
	s.appendTurn(Turn{Role: RoleUser, Text: text})
}

// AppendAssistantTurn adds a completed assistant turn to the history. Callers
// must not invoke this for a cancelled response.
func (s *Session) AppendAssistantTurn(text string) {
	s.appendTurn(Turn{Role: RoleAssistant, Text: text})
}

func (s *Session) appendTurn(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
}

// History returns a snapshot copy of the conversation so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of turns recorded so far.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
