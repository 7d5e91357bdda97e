package runtime

import (
	"context"
	"sort"
	"strings"
	"text/template"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
)

const promptTemplate = `You are the ordering assistant of a restaurant.
Current stage: {{.Stage.Name}} ({{.Stage.ID}}).
{{- with .Stage.Description}}
{{.}}
{{- end}}
{{- if .Next}}
Allowed next stages: {{join .Next ", "}}. Always set nextStage to one of these; anything else is replaced by the rule-derived stage.
{{- else}}
This is the final stage. Omit nextStage.
{{- end}}
{{- with .Stage.Directives.Required}}
You must include these directives: {{joinTypes . ", "}}.
{{- end}}
{{- with .Stage.Directives.Optional}}
You may include these directives: {{joinTypes . ", "}}.
{{- end}}
{{- if .Rules}}
Recommended actions:
{{- range .Rules}}
- {{.Action}}{{with .TargetStage}} (towards {{.}}){{end}}
{{- end}}
{{- end}}
{{- if .Facts}}
Known about the customer:
{{- range .Facts}}
- {{.}}
{{- end}}
{{- end}}
{{- if .Items}}
Catalog items you may reference by id:
{{- range .Items}}
- {{.ID}}: {{.Name}}, {{printf "%.2f" .Price}}{{with .Tags}} [{{join . ", "}}]{{end}}
{{- end}}
{{- end}}
{{- if .Snippets}}
Policy notes:
{{- range .Snippets}}
- {{.Title}}: {{.Body}}
{{- end}}
{{- end}}
Reply with one JSON object: {"content": text, "directives": [{"type", "title", "data"}], "nextStage": stage id, "contextUpdates": {"intent", "preferences", "selectedItems"}, "confidence": 0..1, "reasoning": text}.
Directive types: {{joinTypes .Types ", "}}.`

// PromptData is the input of the prompt template.
type PromptData struct {
	Stage    domain.Stage
	Next     []string
	Rules    []domain.Rule
	Facts    []string
	Items    []ports.Item
	Snippets []ports.Snippet
	Types    []domain.DirectiveType
}

// PromptBuilder renders backend instructions for a stage.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses the built-in template.
func NewPromptBuilder() *PromptBuilder {
	funcs := template.FuncMap{
		"join": strings.Join,
		"joinTypes": func(ts []domain.DirectiveType, sep string) string {
			parts := make([]string, len(ts))
			for i, t := range ts {
				parts[i] = string(t)
			}
			return strings.Join(parts, sep)
		},
	}
	return &PromptBuilder{
		tmpl: template.Must(template.New("prompt").Funcs(funcs).Parse(promptTemplate)),
	}
}

// Render executes the template.
func (p *PromptBuilder) Render(data PromptData) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// buildRequest assembles everything the backend sees for this turn.
func (o *Orchestrator) buildRequest(ctx context.Context, s *domain.SessionContext, utterance string, matched []domain.Rule) ports.Request {
	stage, _ := o.graph.Stage(s.Stage)

	data := PromptData{
		Stage: stage,
		Next:  stage.Next,
		Rules: matched,
		Facts: facts(s),
		Items: o.snapshot(ctx, s, utterance),
		Types: domain.DirectiveTypes(),
	}
	if wantsKnowledge(matched) {
		data.Snippets = o.lookup(ctx, s, utterance)
	}

	prompt, err := o.prompts.Render(data)
	if err != nil {
		o.logger.Warn("prompt render failed", "session_id", s.ID, "stage", s.Stage, "err", err)
		prompt = stage.Description
	}

	msgs := s.Messages
	if len(msgs) > o.historyLimit {
		msgs = msgs[len(msgs)-o.historyLimit:]
	}

	return ports.Request{
		SessionID: s.ID,
		Messages:  append([]domain.Message(nil), msgs...),
		Prompt:    prompt,
		Stage:     s.Stage,
		Hints:     stage.Directives,
		Rules:     matched,
		Items:     data.Items,
	}
}

// snapshot returns catalog items relevant to the utterance and preferences,
// falling back to preferences alone when the utterance names nothing.
func (o *Orchestrator) snapshot(ctx context.Context, s *domain.SessionContext, utterance string) []ports.Item {
	if o.catalog == nil {
		return nil
	}
	q := ports.ItemQuery{Keywords: utterance, Preferences: s.Preferences, Limit: o.catalogLimit}
	items, err := o.catalog.Search(ctx, q)
	if err == nil && len(items) == 0 {
		q.Keywords = ""
		items, err = o.catalog.Search(ctx, q)
	}
	if err != nil {
		o.logger.Warn("catalog search failed", "session_id", s.ID, "err", err)
		return nil
	}
	return items
}

func (o *Orchestrator) lookup(ctx context.Context, s *domain.SessionContext, query string) []ports.Snippet {
	if o.knowledge == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	snippets, err := o.knowledge.Lookup(ctx, query, 3)
	if err != nil {
		o.logger.Warn("knowledge lookup failed", "session_id", s.ID, "err", err)
		return nil
	}
	return snippets
}

func wantsKnowledge(rs []domain.Rule) bool {
	for _, r := range rs {
		for _, t := range append(append([]domain.DirectiveType(nil), r.Directives.Required...), r.Directives.Optional...) {
			if t == domain.DirectiveKnowledgeCard {
				return true
			}
		}
	}
	return false
}

func facts(s *domain.SessionContext) []string {
	var out []string
	keys := make([]string, 0, len(s.Preferences))
	for k := range s.Preferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+": "+s.Preferences[k])
	}
	if len(s.SelectedItems) > 0 {
		out = append(out, "selected items: "+strings.Join(s.SelectedItems, ", "))
	}
	if s.Intent != "" {
		out = append(out, "intent: "+s.Intent)
	}
	return out
}
