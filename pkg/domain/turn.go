package domain

// Ladder rungs reported in diagnostics.
const (
	RungQuestion   = "question"
	RungStructured = "structured"
	RungConverter  = "converter"
	RungInline     = "inline"
	RungGeneric    = "generic"
)

// TurnResult is what the orchestrator returns for one user utterance.
type TurnResult struct {
	Text        string       `json:"text"`
	Directives  []Directive  `json:"directives"`
	Affordances []Affordance `json:"affordances"`
	Stage       string       `json:"stage"`
	Diagnostics Diagnostics  `json:"diagnostics"`
}

// Diagnostics annotates a turn for telemetry. It is never shown to the user.
type Diagnostics struct {
	Confidence   float64       `json:"confidence"`
	Reasoning    string        `json:"reasoning,omitempty"`
	Rung         string        `json:"rung"`
	MatchedRules []string      `json:"matched_rules,omitempty"`
	Substitution *Substitution `json:"substitution,omitempty"`
}

// Substitution records a corrected stage proposal.
type Substitution struct {
	From     string `json:"from"`
	Proposed string `json:"proposed"`
	Chosen   string `json:"chosen"`
	Reason   string `json:"reason"`
}

// IsEmpty reports whether the result has nothing for the caller to render.
func (r *TurnResult) IsEmpty() bool {
	return r == nil || (r.Text == "" && len(r.Directives) == 0 && len(r.Affordances) == 0)
}
