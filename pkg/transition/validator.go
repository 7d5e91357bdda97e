// Package transition guards stage changes proposed by the generative backend.
package transition

import (
	"github.com/aretw0/orderflow/pkg/domain"
)

// Graph is the subset of the stage graph the validator reads.
type Graph interface {
	IsEdge(from, to string) bool
}

// Deriver derives a stage from the utterance when a proposal is unusable.
// *rules.Engine satisfies it.
type Deriver interface {
	DeriveStage(current, utterance string) (string, bool)
}

// Reasons reported in a Decision.
const (
	ReasonLegal    = "legal"
	ReasonMissing  = "missing"
	ReasonIllegal  = "illegal"
	ReasonDerived  = "derived"
	ReasonNoChange = "no_change"
)

// Decision is the validated next stage together with how it was reached.
type Decision struct {
	Stage string
	// Reason is ReasonLegal when the proposal was used as is. Otherwise it is
	// ReasonMissing or ReasonIllegal.
	Reason string
	// Derived is true when the stage came from the rule engine.
	Derived bool
}

// Substituted reports whether the proposal was replaced.
func (d Decision) Substituted() bool {
	return d.Reason == ReasonMissing || d.Reason == ReasonIllegal
}

// Validator confirms that proposed transitions follow the stage graph.
type Validator struct {
	graph   Graph
	deriver Deriver
}

// New creates a validator.
func New(graph Graph, deriver Deriver) *Validator {
	return &Validator{graph: graph, deriver: deriver}
}

// Validate returns proposed when it is a declared successor of current.
// Otherwise, including when proposed is empty or equals current without a
// self-edge, it returns the rule-derived stage for the utterance, or current
// when derivation yields nothing. The result is never an illegal stage.
func (v *Validator) Validate(current, proposed, utterance string) string {
	return v.Decide(current, proposed, utterance).Stage
}

// Decide is Validate with diagnostics.
func (v *Validator) Decide(current, proposed, utterance string) Decision {
	if proposed != "" && v.graph.IsEdge(current, proposed) {
		return Decision{Stage: proposed, Reason: ReasonLegal}
	}

	reason := ReasonIllegal
	if proposed == "" {
		reason = ReasonMissing
	}

	if v.deriver != nil {
		if derived, ok := v.deriver.DeriveStage(current, utterance); ok && v.graph.IsEdge(current, derived) {
			return Decision{Stage: derived, Reason: reason, Derived: true}
		}
	}
	return Decision{Stage: current, Reason: reason}
}

// Substitution converts a decision into the diagnostic record, or nil when the
// proposal was used unchanged.
func (d Decision) Substitution(current, proposed string) *domain.Substitution {
	if !d.Substituted() {
		return nil
	}
	why := d.Reason
	if d.Derived {
		why += "+" + ReasonDerived
	} else {
		why += "+" + ReasonNoChange
	}
	return &domain.Substitution{
		From:     current,
		Proposed: proposed,
		Chosen:   d.Stage,
		Reason:   why,
	}
}
