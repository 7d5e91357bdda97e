package domain

// DirectiveType is the closed vocabulary of UI elements the engine can ask for.
type DirectiveType string

const (
	DirectiveItemList               DirectiveType = "item-list"
	DirectiveItemDetail             DirectiveType = "item-detail"
	DirectivePreferenceForm         DirectiveType = "preference-form"
	DirectiveOrderSummary           DirectiveType = "order-summary"
	DirectiveDeliveryForm           DirectiveType = "delivery-form"
	DirectiveBinaryChoiceQuestion   DirectiveType = "binary-choice-question"
	DirectiveMultipleChoiceQuestion DirectiveType = "multiple-choice-question"
	DirectiveKnowledgeCard          DirectiveType = "knowledge-card"
)

var directiveTypes = map[DirectiveType]struct{}{
	DirectiveItemList:               {},
	DirectiveItemDetail:             {},
	DirectivePreferenceForm:         {},
	DirectiveOrderSummary:           {},
	DirectiveDeliveryForm:           {},
	DirectiveBinaryChoiceQuestion:   {},
	DirectiveMultipleChoiceQuestion: {},
	DirectiveKnowledgeCard:          {},
}

// DirectiveTypes returns the vocabulary in a stable order.
func DirectiveTypes() []DirectiveType {
	return []DirectiveType{
		DirectiveItemList,
		DirectiveItemDetail,
		DirectivePreferenceForm,
		DirectiveOrderSummary,
		DirectiveDeliveryForm,
		DirectiveBinaryChoiceQuestion,
		DirectiveMultipleChoiceQuestion,
		DirectiveKnowledgeCard,
	}
}

// ParseDirectiveType maps a tag to the vocabulary. Unknown tags return false.
func ParseDirectiveType(tag string) (DirectiveType, bool) {
	t := DirectiveType(tag)
	_, ok := directiveTypes[t]
	return t, ok
}

// Valid reports whether t belongs to the vocabulary.
func (t DirectiveType) Valid() bool {
	_, ok := directiveTypes[t]
	return ok
}

// IsQuestion reports whether t renders a structured question.
func (t DirectiveType) IsQuestion() bool {
	return t == DirectiveBinaryChoiceQuestion || t == DirectiveMultipleChoiceQuestion
}

// Directive is a normalized instruction for the presentation layer to render one UI element.
type Directive struct {
	Type   DirectiveType  `json:"type"`
	Title  string         `json:"title"`
	Params map[string]any `json:"params,omitempty"`
}

// Affordance is a simple label/action pair the caller may render as a button.
type Affordance struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Params keys shared by producers and consumers of directives.
const (
	ParamItems      = "items"
	ParamItemID     = "item_id"
	ParamOptions    = "options"
	ParamQuestionID = "question_id"
	ParamStage      = "stage"
	ParamFields     = "fields"
	ParamQuery      = "query"
	ParamSnippets   = "snippets"
)

// QuestionDirective renders a structured question as a directive.
// Two-option questions use the binary variant.
func QuestionDirective(stageID string, q Question) Directive {
	t := DirectiveMultipleChoiceQuestion
	if len(q.Options) == 2 {
		t = DirectiveBinaryChoiceQuestion
	}
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return Directive{
		Type:  t,
		Title: q.Prompt,
		Params: map[string]any{
			ParamQuestionID: q.ID,
			ParamStage:      stageID,
			ParamOptions:    opts,
		},
	}
}
