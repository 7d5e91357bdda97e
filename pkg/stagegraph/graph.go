package stagegraph

import (
	"github.com/aretw0/orderflow/pkg/domain"
)

// Graph is the read-only declaration of every conversation stage.
// It is safe for concurrent use because it is never mutated after New returns.
type Graph struct {
	entry  string
	order  []string
	stages map[string]domain.Stage
}

// New validates the declaration and builds the graph.
// Any inconsistency is a configuration error and is reported as *ConfigError.
func New(entry string, stages ...domain.Stage) (*Graph, error) {
	if err := Validate(entry, stages); err != nil {
		return nil, err
	}

	g := &Graph{
		entry:  entry,
		order:  make([]string, 0, len(stages)),
		stages: make(map[string]domain.Stage, len(stages)),
	}
	for _, s := range stages {
		g.order = append(g.order, s.ID)
		g.stages[s.ID] = cloneStage(s)
	}
	return g, nil
}

// MustNew is like New but panics on configuration errors.
// Use it only for static declarations known at compile time.
func MustNew(entry string, stages ...domain.Stage) *Graph {
	g, err := New(entry, stages...)
	if err != nil {
		panic(err)
	}
	return g
}

// Entry returns the designated initial stage.
func (g *Graph) Entry() string {
	return g.entry
}

// Stage looks up a stage by id. The returned record is a copy.
func (g *Graph) Stage(id string) (domain.Stage, bool) {
	s, ok := g.stages[id]
	if !ok {
		return domain.Stage{}, false
	}
	return cloneStage(s), true
}

// Questions returns the questions of a stage in declaration order.
func (g *Graph) Questions(id string) ([]domain.Question, bool) {
	s, ok := g.stages[id]
	if !ok {
		return nil, false
	}
	return cloneStage(s).Questions, true
}

// Stages returns all stages in declaration order.
func (g *Graph) Stages() []domain.Stage {
	out := make([]domain.Stage, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, cloneStage(g.stages[id]))
	}
	return out
}

// IDs returns all stage ids in declaration order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// IsEdge reports whether to is a declared successor of from.
func (g *Graph) IsEdge(from, to string) bool {
	s, ok := g.stages[from]
	if !ok {
		return false
	}
	return s.HasEdge(to)
}

// Has reports whether the stage exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.stages[id]
	return ok
}

// Unreachable returns the stages that cannot be reached from the entry stage.
func (g *Graph) Unreachable() []string {
	visited := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.stages[current].Next {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	var out []string
	for _, id := range g.order {
		if !visited[id] {
			out = append(out, id)
		}
	}
	return out
}

func cloneStage(s domain.Stage) domain.Stage {
	c := s
	c.Next = append([]string(nil), s.Next...)
	c.Actions = append([]domain.Action(nil), s.Actions...)
	c.Directives.Required = append([]domain.DirectiveType(nil), s.Directives.Required...)
	c.Directives.Optional = append([]domain.DirectiveType(nil), s.Directives.Optional...)
	c.Questions = make([]domain.Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		q.FollowUps = append([]string(nil), q.FollowUps...)
		c.Questions[i] = q
	}
	return c
}
