package runtime

import (
	"context"
	"regexp"
	"strings"

	"github.com/aretw0/orderflow/pkg/directive"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
	"github.com/aretw0/orderflow/pkg/rules"
)

// converterCues maps a directive type to phrases that suggest the reply wants it shown.
var converterCues = rules.KeywordTable{
	string(domain.DirectiveItemList):       {"here are", "our menu", "we have", "we offer", "popular", "i recommend", "take a look at"},
	string(domain.DirectiveOrderSummary):   {"your order", "order summary", "in your cart", "your total"},
	string(domain.DirectiveDeliveryForm):   {"delivery address", "deliver to", "where should we deliver", "pickup time"},
	string(domain.DirectiveKnowledgeCard):  {"our policy", "refund", "allergen", "allergens", "opening hours"},
	string(domain.DirectivePreferenceForm): {"your preferences", "dietary needs", "any restrictions"},
}

var offerQuestion = regexp.MustCompile(`(?i)[^.!?]*\b(?:would you like|do you want|shall i|should i)\b[^.!?]*\?`)

// Converter infers a structured reply from free text using keyword cues only.
// It is the first rung of the fallback ladder.
type Converter struct {
	rules   *rules.Engine
	catalog ports.Catalog
}

// NewConverter creates a converter. catalog may be nil.
func NewConverter(engine *rules.Engine, catalog ports.Catalog) *Converter {
	return &Converter{rules: engine, catalog: catalog}
}

// Convert infers directives, a next stage and an intent from raw.
// It returns domain.ErrNothingInferred when the text carries no usable cue.
func (c *Converter) Convert(ctx context.Context, raw string, s *domain.SessionContext) (*domain.StructuredReply, error) {
	text := directive.Collapse(raw)
	if text == "" {
		return nil, domain.ErrNothingInferred
	}

	reply := &domain.StructuredReply{Content: text, Confidence: 0.5}
	prose := directive.StripMarkers(text)

	// Types the text already carries as markers are left to the marker path.
	marked := make(map[domain.DirectiveType]bool)
	asked := false
	for _, m := range directive.FindMarkers(text) {
		if t, ok := domain.ParseDirectiveType(strings.ToLower(m.Type)); ok {
			marked[t] = true
			asked = asked || t.IsQuestion()
		}
	}

	for _, t := range domain.DirectiveTypes() {
		if marked[t] || !converterCues.Match(string(t), prose) {
			continue
		}
		reply.Directives = append(reply.Directives, c.inferred(ctx, t, prose, s))
	}
	if q := offerQuestion.FindString(prose); q != "" && !asked {
		title := strings.TrimSpace(q)
		reply.Directives = append(reply.Directives, domain.RawDirective{
			Type:   string(domain.DirectiveBinaryChoiceQuestion),
			Title:  title,
			Params: directive.Build(domain.DirectiveBinaryChoiceQuestion, title, "").Params,
		})
	}

	inferredStage := false
	if d, ok := c.rules.Derive(s.Stage, prose); ok && d.Phase != rules.PhaseAdvance {
		reply.NextStage = d.Stage
		inferredStage = true
	}

	if matched := c.rules.ApplicableRules(s.Stage, prose); len(matched) > 0 {
		reply.ContextUpdates = map[string]any{"intent": matched[0].Action}
		reply.Reasoning = "keyword rule " + matched[0].ID
	}

	if len(reply.Directives) == 0 && !inferredStage && reply.ContextUpdates == nil {
		return nil, domain.ErrNothingInferred
	}
	return reply, nil
}

func (c *Converter) inferred(ctx context.Context, t domain.DirectiveType, prose string, s *domain.SessionContext) domain.RawDirective {
	d := domain.RawDirective{Type: string(t), Title: defaultTitles[t]}
	d.Params = directive.Build(t, d.Title, "").Params
	switch t {
	case domain.DirectiveItemList:
		d.Params[domain.ParamItems] = c.itemIDs(ctx, prose, s)
	case domain.DirectiveOrderSummary:
		if len(s.SelectedItems) > 0 {
			d.Params[domain.ParamItems] = append([]string(nil), s.SelectedItems...)
		}
	case domain.DirectiveKnowledgeCard:
		if q := s.LastUserMessage(); q != "" {
			d.Params[domain.ParamQuery] = q
		}
	}
	return d
}

func (c *Converter) itemIDs(ctx context.Context, prose string, s *domain.SessionContext) []string {
	ids := []string{}
	if c.catalog == nil {
		return ids
	}
	q := ports.ItemQuery{Keywords: prose, Preferences: s.Preferences, Limit: DefaultCatalogLimit}
	items, err := c.catalog.Search(ctx, q)
	if err == nil && len(items) == 0 {
		q.Keywords = ""
		items, err = c.catalog.Search(ctx, q)
	}
	if err != nil {
		return ids
	}
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

var defaultTitles = map[domain.DirectiveType]string{
	domain.DirectiveItemList:       "Suggested dishes",
	domain.DirectiveOrderSummary:   "Your order",
	domain.DirectiveDeliveryForm:   "Delivery details",
	domain.DirectiveKnowledgeCard:  "Good to know",
	domain.DirectivePreferenceForm: "Your preferences",
}
