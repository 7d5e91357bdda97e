package domain

// Condition is a predicate over the latest utterance and the current stage.
// Tag names a keyword set in the rule engine's keyword table.
type Condition struct {
	Tag    string   `json:"tag" yaml:"tag" mapstructure:"tag"`
	Stages []string `json:"stages,omitempty" yaml:"stages,omitempty" mapstructure:"stages"`
}

// AppliesTo reports whether the condition is scoped to stageID (empty scope means any stage).
func (c Condition) AppliesTo(stageID string) bool {
	if len(c.Stages) == 0 {
		return true
	}
	for _, s := range c.Stages {
		if s == stageID {
			return true
		}
	}
	return false
}

// Rule recommends an action when its condition holds.
// Rules supplement the stage graph; they never replace its edges.
type Rule struct {
	ID          string         `json:"id" yaml:"id" mapstructure:"id"`
	Condition   Condition      `json:"condition" yaml:"condition" mapstructure:"condition"`
	Action      string         `json:"action" yaml:"action" mapstructure:"action"`
	TargetStage string         `json:"target_stage,omitempty" yaml:"target_stage,omitempty" mapstructure:"target_stage"`
	Priority    int            `json:"priority" yaml:"priority" mapstructure:"priority"`
	Directives  DirectiveHints `json:"directives,omitempty" yaml:"directives,omitempty" mapstructure:"directives"`
}
