package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
)

func names(id string) (string, bool) {
	n, ok := map[string]string{"pad-thai": "Pad thai"}[id]
	return n, ok
}

func TestFormatTurn(t *testing.T) {
	tests := []struct {
		name     string
		res      *domain.TurnResult
		contains []string
	}{
		{
			name: "question with options",
			res: &domain.TurnResult{
				Text: "Welcome!",
				Directives: []domain.Directive{
					{Type: domain.DirectiveMultipleChoiceQuestion, Title: "What brings you here?", Params: map[string]any{domain.ParamOptions: []string{"Order", "Browse"}}},
				},
				Affordances: []domain.Affordance{{Label: "Ask a question", Action: "get_help"}},
			},
			contains: []string{"Welcome!\n\n", "**What brings you here?**", "1. Order\n2. Browse", "_You can also:_ `Ask a question`"},
		},
		{
			name: "items resolved through the catalog",
			res: &domain.TurnResult{Directives: []domain.Directive{
				{Type: domain.DirectiveItemList, Title: "Picks", Params: map[string]any{domain.ParamItems: []any{"pad-thai", "mystery"}}},
			}},
			contains: []string{"- Pad thai\n", "- mystery\n"},
		},
		{
			name: "empty summary",
			res: &domain.TurnResult{Directives: []domain.Directive{
				{Type: domain.DirectiveOrderSummary},
			}},
			contains: []string{"**order-summary**", "_(nothing yet)_"},
		},
		{
			name: "forms and cards",
			res: &domain.TurnResult{Directives: []domain.Directive{
				{Type: domain.DirectiveDeliveryForm, Title: "Delivery", Params: map[string]any{domain.ParamFields: []string{"address"}}},
				{Type: domain.DirectiveKnowledgeCard, Title: "Help", Params: map[string]any{domain.ParamSnippets: []ports.Snippet{{Title: "Refunds", Body: "Within 24h."}}}},
			}},
			contains: []string{"- address: ___", "> **Refunds**: Within 24h."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatTurn(tt.res, names)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}

	assert.Empty(t, FormatTurn(&domain.TurnResult{}, nil))
}

func TestResolveChoice(t *testing.T) {
	res := &domain.TurnResult{Directives: []domain.Directive{
		{Type: domain.DirectiveItemList, Params: map[string]any{domain.ParamItems: []string{"a", "b", "c"}}},
		{Type: domain.DirectiveBinaryChoiceQuestion, Params: map[string]any{domain.ParamOptions: []string{"Yes", "No"}}},
	}}

	tests := []struct {
		input string
		want  string
	}{
		{"1", "Yes"},
		{" 2 ", "No"},
		{"3", "3"},
		{"yes please", "yes please"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveChoice(res, tt.input), tt.input)
	}
	assert.Equal(t, "1", ResolveChoice(nil, "1"))
}

func TestRendererWithoutTerminal(t *testing.T) {
	render := NewRenderer(nil)
	out, err := render("**bold**")
	assert.NoError(t, err)
	assert.Equal(t, "**bold**", out)

	var buf bytes.Buffer
	PrintBanner(&buf, "0.1.0")
	assert.Contains(t, buf.String(), "0.1.0")
}
