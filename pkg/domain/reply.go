package domain

// Reply is the result of a single parse attempt over a backend reply.
// It is either a *StructuredReply or a PlainTextReply.
type Reply interface {
	isReply()
}

// RawDirective is a directive as declared by the backend, before vocabulary checks.
type RawDirective struct {
	Type   string         `json:"type" mapstructure:"type"`
	Title  string         `json:"title" mapstructure:"title"`
	Params map[string]any `json:"params,omitempty" mapstructure:"params"`
	Data   string         `json:"data,omitempty" mapstructure:"data"`
}

// StructuredReply is a well-formed structured backend reply.
type StructuredReply struct {
	Content        string         `json:"content" mapstructure:"content"`
	Directives     []RawDirective `json:"directives" mapstructure:"directives"`
	NextStage      string         `json:"nextStage,omitempty" mapstructure:"nextStage"`
	ContextUpdates map[string]any `json:"contextUpdates,omitempty" mapstructure:"contextUpdates"`
	Confidence     float64        `json:"confidence" mapstructure:"confidence"`
	Reasoning      string         `json:"reasoning,omitempty" mapstructure:"reasoning"`
}

// PlainTextReply is a degraded reply: free text possibly carrying inline markers.
type PlainTextReply struct {
	Text string
}

func (*StructuredReply) isReply() {}
func (PlainTextReply) isReply() {}
