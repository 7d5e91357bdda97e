package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation log.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Stage   string    `json:"stage,omitempty"`
	At      time.Time `json:"at"`
}

// SessionContext is the mutable record threaded through a conversation's turns.
// It is owned by exactly one turn loop at a time.
type SessionContext struct {
	ID            string    `json:"id"`
	Messages      []Message `json:"messages"`
	Stage         string    `json:"stage"`
	PreviousStage string    `json:"previous_stage,omitempty"`

	// Answered and Answers are keyed by AnswerKey(stage, question).
	Answered map[string]bool   `json:"answered"`
	Answers  map[string]string `json:"answers"`

	Intent        string            `json:"intent,omitempty"`
	Preferences   map[string]string `json:"preferences,omitempty"`
	SelectedItems []string          `json:"selected_items,omitempty"`

	Turn         int       `json:"turn"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

// NewSessionContext creates a clean session positioned at the entry stage.
func NewSessionContext(id, entryStage string, now time.Time) *SessionContext {
	return &SessionContext{
		ID:           id,
		Stage:        entryStage,
		Answered:     make(map[string]bool),
		Answers:      make(map[string]string),
		Preferences:  make(map[string]string),
		StartedAt:    now,
		LastActivity: now,
	}
}

// AnsweredIDs returns the set of question ids answered in stageID.
func (s *SessionContext) AnsweredIDs(stageID string) map[string]bool {
	ids := make(map[string]bool)
	prefix := stageID + "/"
	for key, ok := range s.Answered {
		if ok && len(key) > len(prefix) && key[:len(prefix)] == prefix {
			ids[key[len(prefix):]] = true
		}
	}
	return ids
}

// RecordAnswer stores an answer and marks the question as answered.
func (s *SessionContext) RecordAnswer(stageID, questionID, answer string) {
	if s.Answered == nil {
		s.Answered = make(map[string]bool)
	}
	if s.Answers == nil {
		s.Answers = make(map[string]string)
	}
	key := AnswerKey(stageID, questionID)
	s.Answered[key] = true
	s.Answers[key] = answer
}

// Answer returns the recorded answer for a question, if any.
func (s *SessionContext) Answer(stageID, questionID string) (string, bool) {
	v, ok := s.Answers[AnswerKey(stageID, questionID)]
	return v, ok
}

// Append adds a message to the log.
func (s *SessionContext) Append(role Role, content string, at time.Time) {
	s.Messages = append(s.Messages, Message{
		Role:    role,
		Content: content,
		Stage:   s.Stage,
		At:      at,
	})
}

// LastUserMessage returns the latest user utterance.
func (s *SessionContext) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// MoveTo changes the current stage, keeping the previous one for audit.
// Moving to the current stage is a no-op. Entering a stage reopens its
// questions, so a stage revisited through a back edge asks them again.
func (s *SessionContext) MoveTo(stageID string) bool {
	if stageID == "" || stageID == s.Stage {
		return false
	}
	s.PreviousStage = s.Stage
	s.Stage = stageID
	s.Reopen(stageID)
	return true
}

// Reopen marks every question of stageID as unanswered. The last answers stay
// in Answers until they are replaced.
func (s *SessionContext) Reopen(stageID string) {
	for id := range s.AnsweredIDs(stageID) {
		delete(s.Answered, AnswerKey(stageID, id))
	}
}

// Clone returns a deep copy of the session.
func (s *SessionContext) Clone() *SessionContext {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.SelectedItems = append([]string(nil), s.SelectedItems...)
	c.Answered = make(map[string]bool, len(s.Answered))
	for k, v := range s.Answered {
		c.Answered[k] = v
	}
	c.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	c.Preferences = make(map[string]string, len(s.Preferences))
	for k, v := range s.Preferences {
		c.Preferences[k] = v
	}
	return &c
}

// ContextUpdate is the partial session record a backend reply may carry.
type ContextUpdate struct {
	Intent        string            `json:"intent,omitempty" mapstructure:"intent"`
	Preferences   map[string]string `json:"preferences,omitempty" mapstructure:"preferences"`
	SelectedItems []string          `json:"selectedItems,omitempty" mapstructure:"selectedItems"`
}

// IsEmpty reports whether the update carries nothing.
func (u ContextUpdate) IsEmpty() bool {
	return u.Intent == "" && len(u.Preferences) == 0 && len(u.SelectedItems) == 0
}
