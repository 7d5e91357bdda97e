package domain

// Stage is a named point in the conversation graph.
// Stages are declared once at startup and never mutated afterwards.
type Stage struct {
	ID          string `json:"id" yaml:"id" mapstructure:"id"`
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`

	// Next lists the legal successor stages, in preference order.
	// An empty list marks a final stage.
	Next []string `json:"next,omitempty" yaml:"next,omitempty" mapstructure:"next"`

	// Actions are the follow-up actions offered to the user while in this stage.
	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty" mapstructure:"actions"`

	// Directives hints which UI elements the backend must or may emit in this stage.
	Directives DirectiveHints `json:"directives,omitempty" yaml:"directives,omitempty" mapstructure:"directives"`

	// Questions are the structured questions gathered in this stage, in declaration order.
	Questions []Question `json:"questions,omitempty" yaml:"questions,omitempty" mapstructure:"questions"`

	// Filler is the sentence shown when a reply carries directives but no prose.
	Filler string `json:"filler,omitempty" yaml:"filler,omitempty" mapstructure:"filler"`
}

// Action is a follow-up action available in a stage.
type Action struct {
	ID       string `json:"id" yaml:"id" mapstructure:"id"`
	Label    string `json:"label" yaml:"label" mapstructure:"label"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
}

// DirectiveHints splits directive types into required and optional sets.
type DirectiveHints struct {
	Required []DirectiveType `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Optional []DirectiveType `json:"optional,omitempty" yaml:"optional,omitempty" mapstructure:"optional"`
}

// IsFinal reports whether the stage has no successors.
func (s Stage) IsFinal() bool {
	return len(s.Next) == 0
}

// HasEdge reports whether target is a declared successor of the stage.
func (s Stage) HasEdge(target string) bool {
	for _, n := range s.Next {
		if n == target {
			return true
		}
	}
	return false
}

// Question returns the question with the given id.
func (s Stage) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Question is a structured question whose answers are restricted to a closed set.
type Question struct {
	ID        string   `json:"id" yaml:"id" mapstructure:"id"`
	Prompt    string   `json:"prompt" yaml:"prompt" mapstructure:"prompt"`
	Options   []string `json:"options" yaml:"options" mapstructure:"options"`
	FollowUps []string `json:"follow_ups,omitempty" yaml:"follow_ups,omitempty" mapstructure:"follow_ups"`
	Required  bool     `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
}

// Accepts reports whether answer is byte-for-byte one of the allowed options.
func (q Question) Accepts(answer string) bool {
	for _, opt := range q.Options {
		if opt == answer {
			return true
		}
	}
	return false
}

// AnswerKey builds the key under which a session records a question's answer.
// Question ids are only unique within their stage.
func AnswerKey(stageID, questionID string) string {
	return stageID + "/" + questionID
}
