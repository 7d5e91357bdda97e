package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
)

// ItemNamer resolves a catalog item id to a display name.
type ItemNamer func(id string) (string, bool)

// FormatTurn renders a turn result as markdown for the terminal.
// Questions list their options numbered so the user may answer by number.
func FormatTurn(res *domain.TurnResult, names ItemNamer) string {
	if res.IsEmpty() {
		return ""
	}
	var sb strings.Builder
	if res.Text != "" {
		sb.WriteString(res.Text)
		sb.WriteString("\n\n")
	}

	for _, d := range res.Directives {
		formatDirective(&sb, d, names)
	}

	if len(res.Affordances) > 0 {
		labels := make([]string, len(res.Affordances))
		for i, a := range res.Affordances {
			labels[i] = "`" + a.Label + "`"
		}
		fmt.Fprintf(&sb, "_You can also:_ %s\n", strings.Join(labels, " · "))
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func formatDirective(sb *strings.Builder, d domain.Directive, names ItemNamer) {
	title := d.Title
	if title == "" {
		title = string(d.Type)
	}
	fmt.Fprintf(sb, "**%s**\n\n", title)

	switch d.Type {
	case domain.DirectiveItemList, domain.DirectiveOrderSummary:
		items := Options(d)
		if len(items) == 0 {
			sb.WriteString("_(nothing yet)_\n\n")
			return
		}
		for _, id := range items {
			fmt.Fprintf(sb, "- %s\n", itemName(id, names))
		}
	case domain.DirectiveItemDetail:
		id, _ := d.Params[domain.ParamItemID].(string)
		fmt.Fprintf(sb, "- %s\n", itemName(id, names))
	case domain.DirectiveBinaryChoiceQuestion, domain.DirectiveMultipleChoiceQuestion:
		for i, opt := range Options(d) {
			fmt.Fprintf(sb, "%d. %s\n", i+1, opt)
		}
	case domain.DirectivePreferenceForm, domain.DirectiveDeliveryForm:
		for _, f := range stringsOf(d.Params[domain.ParamFields]) {
			fmt.Fprintf(sb, "- %s: ___\n", f)
		}
	case domain.DirectiveKnowledgeCard:
		snippets, _ := d.Params[domain.ParamSnippets].([]ports.Snippet)
		for _, sn := range snippets {
			fmt.Fprintf(sb, "> **%s**: %s\n", sn.Title, sn.Body)
		}
	}
	sb.WriteString("\n")
}

// Options returns the option or item list of a directive.
func Options(d domain.Directive) []string {
	if d.Type == domain.DirectiveItemList || d.Type == domain.DirectiveOrderSummary {
		return stringsOf(d.Params[domain.ParamItems])
	}
	return stringsOf(d.Params[domain.ParamOptions])
}

// ResolveChoice maps a numeric reply to the option of the last question in
// res. Anything else is returned unchanged.
func ResolveChoice(res *domain.TurnResult, input string) string {
	if res == nil {
		return input
	}
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return input
	}
	for i := len(res.Directives) - 1; i >= 0; i-- {
		d := res.Directives[i]
		if !d.Type.IsQuestion() {
			continue
		}
		opts := Options(d)
		if n >= 1 && n <= len(opts) {
			return opts[n-1]
		}
		break
	}
	return input
}

func itemName(id string, names ItemNamer) string {
	if names != nil {
		if name, ok := names(id); ok {
			return name
		}
	}
	return id
}

func stringsOf(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, x := range vals {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return nil
}
