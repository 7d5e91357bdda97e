// Package rules evaluates keyword rules against user utterances and derives a
// stage when the backend does not supply a usable one.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

// Graph is the subset of the stage graph the rule engine reads.
type Graph interface {
	Has(id string) bool
	Stage(id string) (domain.Stage, bool)
	IsEdge(from, to string) bool
}

// Derivation phases reported in Derivation.Phase.
const (
	PhaseHelp     = "help"
	PhaseTransact = "transact"
	PhaseRoute    = "route"
	PhaseAdvance  = "advance"
)

// Derivation is the outcome of DeriveStage with the phase that produced it.
type Derivation struct {
	Stage string
	Phase string
	Tag   string
}

// Engine evaluates a Table against a stage graph.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	graph Graph
	table Table
	rules []domain.Rule
}

// New validates the table against the graph. Unknown tags or stages are
// configuration errors.
func New(graph Graph, table Table) (*Engine, error) {
	if err := check(graph, table); err != nil {
		return nil, err
	}
	rules := append([]domain.Rule(nil), table.Rules...)
	sortRules(rules)
	return &Engine{graph: graph, table: table, rules: rules}, nil
}

// Default builds an engine from the embedded table.
func Default(graph Graph) (*Engine, error) {
	t, err := DefaultTable()
	if err != nil {
		return nil, err
	}
	return New(graph, t)
}

// Keywords exposes the keyword table.
func (e *Engine) Keywords() KeywordTable {
	return e.table.Keywords
}

// Rules returns all rules sorted by priority.
func (e *Engine) Rules() []domain.Rule {
	return append([]domain.Rule(nil), e.rules...)
}

// ApplicableRules returns the rules whose condition holds for the stage and
// utterance, sorted ascending by priority then id.
func (e *Engine) ApplicableRules(stageID, utterance string) []domain.Rule {
	norm := Normalize(utterance)
	var out []domain.Rule
	for _, r := range e.rules {
		if !r.Condition.AppliesTo(stageID) {
			continue
		}
		if matchAny(e.table.Keywords[r.Condition.Tag], norm) {
			out = append(out, r)
		}
	}
	return out
}

// DeriveStage walks the fixed decision order and returns the first legal
// successor of current it yields. It returns false when nothing matches, which
// means "stay in the current stage".
func (e *Engine) DeriveStage(current, utterance string) (string, bool) {
	d, ok := e.Derive(current, utterance)
	return d.Stage, ok
}

// Derive is DeriveStage with the phase and tag that produced the result.
func (e *Engine) Derive(current, utterance string) (Derivation, bool) {
	stage, ok := e.graph.Stage(current)
	if !ok || stage.IsFinal() {
		return Derivation{}, false
	}
	norm := Normalize(utterance)
	policy := e.table.Derivation

	for _, step := range []struct {
		phase string
		step  Step
	}{
		{PhaseHelp, policy.Help},
		{PhaseTransact, policy.Transact},
	} {
		if step.step.Tag == "" || step.step.skipped(current) {
			continue
		}
		if !matchAny(e.table.Keywords[step.step.Tag], norm) {
			continue
		}
		for _, target := range step.step.Targets {
			if stage.HasEdge(target) {
				return Derivation{Stage: target, Phase: step.phase, Tag: step.step.Tag}, true
			}
		}
	}

	for _, route := range policy.Routes[current] {
		if stage.HasEdge(route.Target) && matchAny(e.table.Keywords[route.Tag], norm) {
			return Derivation{Stage: route.Target, Phase: PhaseRoute, Tag: route.Tag}, true
		}
	}

	return Derivation{Stage: stage.Next[0], Phase: PhaseAdvance}, true
}

func sortRules(rules []domain.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

func check(graph Graph, t Table) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	tag := func(where, tag string) {
		if !t.Keywords.Has(tag) {
			add("%s: unknown keyword tag %q", where, tag)
		}
	}
	stage := func(where, id string) {
		if !graph.Has(id) {
			add("%s: unknown stage %q", where, id)
		}
	}

	ids := make(map[string]bool, len(t.Rules))
	for _, r := range t.Rules {
		where := fmt.Sprintf("rule %q", r.ID)
		if r.ID == "" {
			add("rule without id")
		} else if ids[r.ID] {
			add("%s declared twice", where)
		}
		ids[r.ID] = true
		tag(where, r.Condition.Tag)
		for _, s := range r.Condition.Stages {
			stage(where, s)
		}
		if r.TargetStage != "" {
			stage(where, r.TargetStage)
		}
		for _, dt := range append(append([]domain.DirectiveType(nil), r.Directives.Required...), r.Directives.Optional...) {
			if !dt.Valid() {
				add("%s: unknown directive type %q", where, dt)
			}
		}
	}

	for name, step := range map[string]Step{"help": t.Derivation.Help, "transact": t.Derivation.Transact} {
		if step.Tag == "" {
			continue
		}
		tag("derivation "+name, step.Tag)
		for _, s := range append(append([]string(nil), step.Targets...), step.SkipIn...) {
			stage("derivation "+name, s)
		}
	}
	for from, routes := range t.Derivation.Routes {
		stage("routes", from)
		for _, r := range routes {
			where := fmt.Sprintf("route %s->%s", from, r.Target)
			tag(where, r.Tag)
			stage(where, r.Target)
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &stagegraph.ConfigError{Problems: problems}
	}
	return nil
}

// String renders a derivation for logs.
func (d Derivation) String() string {
	if d.Tag == "" {
		return d.Phase + ":" + d.Stage
	}
	return strings.Join([]string{d.Phase, d.Tag, d.Stage}, ":")
}
