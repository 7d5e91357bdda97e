package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

// GraphOverlay contains session data to visualize on the graph.
type GraphOverlay struct {
	VisitedStages []string
	CurrentStage  string
}

// OverlayFor builds an overlay from a session snapshot. Visited stages are
// the ones with a recorded answer.
func OverlayFor(s *domain.SessionContext) *GraphOverlay {
	if s == nil {
		return nil
	}
	overlay := &GraphOverlay{CurrentStage: s.Stage}
	seen := make(map[string]bool)
	for key := range s.Answers {
		i := strings.LastIndex(key, "/")
		if i <= 0 {
			continue
		}
		if stage := key[:i]; !seen[stage] {
			seen[stage] = true
			overlay.VisitedStages = append(overlay.VisitedStages, stage)
		}
	}
	sort.Strings(overlay.VisitedStages)
	return overlay
}

// GenerateMermaid produces a Mermaid flowchart of the stage graph.
// Shapes:
// - Entry: ((Circle))
// - Final (no successors): ([Stadium])
// - Asks questions: [/Parallelogram/]
// - Default: [Rectangle]
// Rules scoped to a stage are drawn as dotted edges labelled with their tag
// when the graph allows that move. Overlay styles are applied if provided.
func GenerateMermaid(g *stagegraph.Graph, rules []domain.Rule, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, st := range g.Stages() {
		safeID := sanitizeMermaidID(st.ID)

		opener, closer := "[", "]"
		switch {
		case st.ID == g.Entry():
			opener, closer = "((", "))"
		case len(st.Next) == 0:
			opener, closer = "([", "])"
		case len(st.Questions) > 0:
			opener, closer = "[/", "/]"
		}

		label := st.ID
		if st.Name != "" && st.Name != st.ID {
			label = fmt.Sprintf("%s <br/> %s", escape(st.Name), st.ID)
		}
		if len(st.Directives.Required) > 0 {
			label = fmt.Sprintf("%s <br/> %s", label, typeList(st.Directives.Required))
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, next := range st.Next {
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(next))
		}
	}

	for _, r := range rules {
		if r.TargetStage == "" {
			continue
		}
		for _, from := range r.Condition.Stages {
			if !g.IsEdge(from, r.TargetStage) {
				continue
			}
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", sanitizeMermaidID(from), escape(r.Condition.Tag), sanitizeMermaidID(r.TargetStage))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedStages {
			if !g.Has(id) || id == overlay.CurrentStage {
				continue
			}
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentStage != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentStage))
		}
	}

	return sb.String()
}

func typeList(types []domain.DirectiveType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
