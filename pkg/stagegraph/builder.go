package stagegraph

import "github.com/aretw0/orderflow/pkg/domain"

// Builder assembles a stage graph programmatically.
//
//	b := stagegraph.NewBuilder("greeting")
//	b.Add("greeting").Name("Welcome").Ask("visit_purpose", "What brings you here?", "Order", "Browse").Go("menu")
//	b.Add("menu").Name("Menu").Hint(domain.DirectiveItemList)
//	g, err := b.Build()
type Builder struct {
	entry  string
	order  []string
	stages map[string]*StageBuilder
}

// NewBuilder creates a builder whose graph starts at entry.
func NewBuilder(entry string) *Builder {
	return &Builder{
		entry:  entry,
		stages: make(map[string]*StageBuilder),
	}
}

// Add creates a new stage in the graph.
// If the stage already exists, it returns the existing builder.
func (b *Builder) Add(id string) *StageBuilder {
	if sb, ok := b.stages[id]; ok {
		return sb
	}
	sb := &StageBuilder{stage: domain.Stage{ID: id, Name: id}}
	b.stages[id] = sb
	b.order = append(b.order, id)
	return sb
}

// Build validates and compiles the graph.
func (b *Builder) Build() (*Graph, error) {
	stages := make([]domain.Stage, 0, len(b.order))
	for _, id := range b.order {
		stages = append(stages, b.stages[id].stage)
	}
	return New(b.entry, stages...)
}

// StageBuilder provides a fluent API for configuring a stage.
type StageBuilder struct {
	stage domain.Stage
}

// Name sets the human-readable name.
func (s *StageBuilder) Name(name string) *StageBuilder {
	s.stage.Name = name
	return s
}

// Describe sets the stage description used in prompts.
func (s *StageBuilder) Describe(text string) *StageBuilder {
	s.stage.Description = text
	return s
}

// Go appends legal successors, in preference order.
func (s *StageBuilder) Go(targets ...string) *StageBuilder {
	s.stage.Next = append(s.stage.Next, targets...)
	return s
}

// Action adds a follow-up action.
func (s *StageBuilder) Action(id, label string, required bool) *StageBuilder {
	s.stage.Actions = append(s.stage.Actions, domain.Action{ID: id, Label: label, Required: required})
	return s
}

// Hint marks directive types the backend must emit in this stage.
func (s *StageBuilder) Hint(types ...domain.DirectiveType) *StageBuilder {
	s.stage.Directives.Required = append(s.stage.Directives.Required, types...)
	return s
}

// OptionalHint marks directive types the backend may emit in this stage.
func (s *StageBuilder) OptionalHint(types ...domain.DirectiveType) *StageBuilder {
	s.stage.Directives.Optional = append(s.stage.Directives.Optional, types...)
	return s
}

// Ask adds a required question.
func (s *StageBuilder) Ask(id, prompt string, options ...string) *StageBuilder {
	return s.question(id, prompt, true, options)
}

// Offer adds an optional question.
func (s *StageBuilder) Offer(id, prompt string, options ...string) *StageBuilder {
	return s.question(id, prompt, false, options)
}

// FollowUp links the last declared question to follow-up question ids.
func (s *StageBuilder) FollowUp(ids ...string) *StageBuilder {
	if n := len(s.stage.Questions); n > 0 {
		s.stage.Questions[n-1].FollowUps = append(s.stage.Questions[n-1].FollowUps, ids...)
	}
	return s
}

// Filler sets the sentence used when a reply carries directives but no prose.
func (s *StageBuilder) Filler(text string) *StageBuilder {
	s.stage.Filler = text
	return s
}

func (s *StageBuilder) question(id, prompt string, required bool, options []string) *StageBuilder {
	s.stage.Questions = append(s.stage.Questions, domain.Question{
		ID:       id,
		Prompt:   prompt,
		Options:  options,
		Required: required,
	})
	return s
}
