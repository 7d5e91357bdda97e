package runtime

import (
	"context"

	"github.com/aretw0/orderflow/pkg/directive"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
)

// GenericAffordances are the navigation actions offered when nothing better is available.
func GenericAffordances() []domain.Affordance {
	return []domain.Affordance{
		{Label: "Browse the menu", Action: "browse_menu"},
		{Label: "Review my order", Action: "review_order"},
		{Label: "Get help", Action: "get_help"},
		{Label: "Start over", Action: "restart"},
	}
}

// affordances derives the caller's buttons from the stage actions.
// Generic navigation is used when the result would otherwise offer nothing.
func (o *Orchestrator) affordances(stageID string, res *domain.TurnResult) []domain.Affordance {
	if len(res.Affordances) > 0 {
		return res.Affordances
	}
	var out []domain.Affordance
	if stage, ok := o.graph.Stage(stageID); ok {
		for _, a := range stage.Actions {
			out = append(out, domain.Affordance{Label: a.Label, Action: a.ID})
		}
	}
	if len(out) == 0 && len(res.Directives) == 0 {
		return GenericAffordances()
	}
	return out
}

// entryDirectives are shown when a turn moves into a new stage outside the
// structured path: the engine-fillable required directives of the stage,
// then its first pending required question.
func (o *Orchestrator) entryDirectives(ctx context.Context, s *domain.SessionContext) []domain.Directive {
	stage, ok := o.graph.Stage(s.Stage)
	if !ok {
		return nil
	}

	var out []domain.Directive
	for _, t := range stage.Directives.Required {
		switch t {
		case domain.DirectiveItemList:
			d := directive.Build(t, stage.Name, "")
			d.Params[domain.ParamItems] = o.itemIDs(ctx, s)
			out = append(out, d)
		case domain.DirectiveOrderSummary:
			d := directive.Build(t, "Your order", "")
			d.Params[domain.ParamItems] = append([]string{}, s.SelectedItems...)
			out = append(out, d)
		case domain.DirectiveDeliveryForm, domain.DirectivePreferenceForm:
			out = append(out, directive.Build(t, stage.Name, ""))
		}
	}

	if q, ok := o.tracker.NextQuestion(s.Stage, s.AnsweredIDs(s.Stage)); ok && q.Required {
		out = append(out, domain.QuestionDirective(s.Stage, q))
	}
	return out
}

// enrich fills knowledge cards produced by the ladder with ranked snippets.
func (o *Orchestrator) enrich(ctx context.Context, s *domain.SessionContext, res *domain.TurnResult) {
	for i, d := range res.Directives {
		if d.Type != domain.DirectiveKnowledgeCard {
			continue
		}
		if _, ok := d.Params[domain.ParamSnippets]; ok {
			continue
		}
		query, _ := d.Params[domain.ParamQuery].(string)
		if query == "" {
			query = s.LastUserMessage()
		}
		snippets := o.lookup(ctx, s, query)
		if len(snippets) == 0 {
			continue
		}
		if d.Params == nil {
			d.Params = map[string]any{}
		}
		d.Params[domain.ParamSnippets] = snippets
		res.Directives[i] = d
	}
}

func (o *Orchestrator) itemIDs(ctx context.Context, s *domain.SessionContext) []string {
	ids := []string{}
	if o.catalog == nil {
		return ids
	}
	items, err := o.catalog.Search(ctx, ports.ItemQuery{Preferences: s.Preferences, Limit: o.catalogLimit})
	if err != nil {
		o.logger.Warn("catalog search failed", "session_id", s.ID, "err", err)
		return ids
	}
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}
