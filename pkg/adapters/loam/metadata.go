package loam

import "github.com/aretw0/orderflow/pkg/domain"

// StageMetadata is the front matter of one stage document.
// The markdown body becomes the stage description.
type StageMetadata struct {
	ID         string             `json:"id" mapstructure:"id"`
	Name       string             `json:"name,omitempty" mapstructure:"name"`
	Entry      bool               `json:"entry,omitempty" mapstructure:"entry"`
	Next       []string           `json:"next,omitempty" mapstructure:"next"`
	Actions    []ActionMetadata   `json:"actions,omitempty" mapstructure:"actions"`
	Directives DirectiveMetadata  `json:"directives,omitempty" mapstructure:"directives"`
	Questions  []QuestionMetadata `json:"questions,omitempty" mapstructure:"questions"`
	Filler     string             `json:"filler,omitempty" mapstructure:"filler"`
}

// ActionMetadata is a follow-up action.
type ActionMetadata struct {
	ID       string `json:"id" mapstructure:"id"`
	Label    string `json:"label" mapstructure:"label"`
	Required bool   `json:"required,omitempty" mapstructure:"required"`
}

// DirectiveMetadata lists directive hints by name.
type DirectiveMetadata struct {
	Required []string `json:"required,omitempty" mapstructure:"required"`
	Optional []string `json:"optional,omitempty" mapstructure:"optional"`
}

// QuestionMetadata is a structured question.
type QuestionMetadata struct {
	ID        string   `json:"id" mapstructure:"id"`
	Prompt    string   `json:"prompt" mapstructure:"prompt"`
	Options   []string `json:"options" mapstructure:"options"`
	FollowUps []string `json:"follow_ups,omitempty" mapstructure:"follow_ups"`
	Required  bool     `json:"required,omitempty" mapstructure:"required"`
}

func (m StageMetadata) stage(id, description string) domain.Stage {
	s := domain.Stage{
		ID:          id,
		Name:        m.Name,
		Description: description,
		Next:        m.Next,
		Filler:      m.Filler,
		Directives: domain.DirectiveHints{
			Required: directiveTypes(m.Directives.Required),
			Optional: directiveTypes(m.Directives.Optional),
		},
	}
	for _, a := range m.Actions {
		s.Actions = append(s.Actions, domain.Action{ID: a.ID, Label: a.Label, Required: a.Required})
	}
	for _, q := range m.Questions {
		s.Questions = append(s.Questions, domain.Question{
			ID:        q.ID,
			Prompt:    q.Prompt,
			Options:   q.Options,
			FollowUps: q.FollowUps,
			Required:  q.Required,
		})
	}
	return s
}

func metadataOf(s domain.Stage, entry bool) StageMetadata {
	m := StageMetadata{
		ID:     s.ID,
		Name:   s.Name,
		Entry:  entry,
		Next:   s.Next,
		Filler: s.Filler,
		Directives: DirectiveMetadata{
			Required: typeNames(s.Directives.Required),
			Optional: typeNames(s.Directives.Optional),
		},
	}
	for _, a := range s.Actions {
		m.Actions = append(m.Actions, ActionMetadata{ID: a.ID, Label: a.Label, Required: a.Required})
	}
	for _, q := range s.Questions {
		m.Questions = append(m.Questions, QuestionMetadata{
			ID:        q.ID,
			Prompt:    q.Prompt,
			Options:   q.Options,
			FollowUps: q.FollowUps,
			Required:  q.Required,
		})
	}
	return m
}

// Names are not checked here; stagegraph validation reports unknown types.
func directiveTypes(names []string) []domain.DirectiveType {
	if len(names) == 0 {
		return nil
	}
	out := make([]domain.DirectiveType, len(names))
	for i, n := range names {
		out[i] = domain.DirectiveType(n)
	}
	return out
}

func typeNames(ts []domain.DirectiveType) []string {
	if len(ts) == 0 {
		return nil
	}
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}
