// Package directive extracts UI directives from backend replies.
//
// Two paths feed one ordered output: directives declared by a structured
// reply, then inline markers of the form marker(type:title:data) found in the
// reply text. Marker spans are stripped from the residual text.
package directive

import (
	"log/slog"
	"strings"

	"github.com/aretw0/orderflow/internal/logging"
	"github.com/aretw0/orderflow/pkg/domain"
)

// DefaultFiller is used when a stage declares no filler sentence.
const DefaultFiller = "Here you go."

// Stages looks up stage declarations for filler sentences.
type Stages interface {
	Stage(id string) (domain.Stage, bool)
}

// Output is the normalized result of directive extraction.
type Output struct {
	Text       string
	Directives []domain.Directive
	// Dropped lists unknown type tags that were discarded.
	Dropped []string
}

// IsEmpty reports whether extraction produced nothing usable.
func (o Output) IsEmpty() bool {
	return o.Text == "" && len(o.Directives) == 0
}

// Parser normalizes structured and inline directives.
type Parser struct {
	stages Stages
	logger *slog.Logger
}

// NewParser creates a parser. A nil logger discards output.
func NewParser(stages Stages, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Parser{stages: stages, logger: logger}
}

// Structured extracts directives from a structured reply: its declared
// directives first, then inline markers found in its content.
func (p *Parser) Structured(reply *domain.StructuredReply, stageID string) Output {
	var out Output
	for _, raw := range reply.Directives {
		t, ok := domain.ParseDirectiveType(strings.ToLower(strings.TrimSpace(raw.Type)))
		if !ok {
			out.Dropped = append(out.Dropped, raw.Type)
			continue
		}
		out.Directives = append(out.Directives, fromRaw(t, raw))
	}

	inline := p.scan(reply.Content)
	out.Directives = append(out.Directives, inline.Directives...)
	out.Dropped = append(out.Dropped, inline.Dropped...)
	out.Text = inline.Text
	return p.finish(out, stageID)
}

// Inline runs the inline-marker path over free text.
func (p *Parser) Inline(text, stageID string) Output {
	return p.finish(p.scan(text), stageID)
}

// Filler returns the stage's filler sentence.
func (p *Parser) Filler(stageID string) string {
	if p.stages != nil {
		if s, ok := p.stages.Stage(stageID); ok && s.Filler != "" {
			return s.Filler
		}
	}
	return DefaultFiller
}

func (p *Parser) scan(text string) Output {
	var out Output
	for _, m := range FindMarkers(text) {
		t, ok := domain.ParseDirectiveType(strings.ToLower(m.Type))
		if !ok {
			out.Dropped = append(out.Dropped, m.Type)
			continue
		}
		out.Directives = append(out.Directives, Build(t, m.Title, m.Data))
	}
	out.Text = Collapse(StripMarkers(text))
	return out
}

func (p *Parser) finish(out Output, stageID string) Output {
	for _, tag := range out.Dropped {
		p.logger.Debug("dropped unknown directive type", "type", tag, "stage", stageID)
	}
	if out.Text == "" && len(out.Directives) > 0 {
		out.Text = p.Filler(stageID)
	}
	return out
}

func fromRaw(t domain.DirectiveType, raw domain.RawDirective) domain.Directive {
	if len(raw.Params) == 0 && raw.Data != "" {
		return Build(t, raw.Title, raw.Data)
	}
	d := domain.Directive{Type: t, Title: raw.Title}
	if len(raw.Params) > 0 {
		d.Params = make(map[string]any, len(raw.Params))
		for k, v := range raw.Params {
			d.Params[k] = v
		}
	}
	return d
}
