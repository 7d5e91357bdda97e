package stagegraph

import (
	"fmt"
	"strings"

	"github.com/aretw0/orderflow/pkg/domain"
)

// ConfigError aggregates every inconsistency found in a stage declaration.
// It is the only fatal error class of the engine and must abort startup.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid stage graph: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid stage graph: %d problems:\n- %s", len(e.Problems), strings.Join(e.Problems, "\n- "))
}

// Validate checks a declaration without building the graph.
func Validate(entry string, stages []domain.Stage) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	ids := make(map[string]bool, len(stages))
	for i, s := range stages {
		if s.ID == "" {
			add("stage #%d has no id", i)
			continue
		}
		if ids[s.ID] {
			add("stage %q declared twice", s.ID)
		}
		ids[s.ID] = true
	}

	if len(stages) == 0 {
		add("no stages declared")
	}
	if entry == "" {
		add("entry stage is empty")
	} else if len(stages) > 0 && !ids[entry] {
		add("entry stage %q is not declared", entry)
	}

	for _, s := range stages {
		if s.ID == "" {
			continue
		}
		seenNext := make(map[string]bool, len(s.Next))
		for _, next := range s.Next {
			if !ids[next] {
				add("stage %q: successor %q is not declared", s.ID, next)
			}
			if seenNext[next] {
				add("stage %q: successor %q listed twice", s.ID, next)
			}
			seenNext[next] = true
		}

		for _, dt := range append(append([]domain.DirectiveType(nil), s.Directives.Required...), s.Directives.Optional...) {
			if !dt.Valid() {
				add("stage %q: unknown directive type %q", s.ID, dt)
			}
		}

		questionIDs := make(map[string]bool, len(s.Questions))
		for _, q := range s.Questions {
			if q.ID == "" {
				add("stage %q: question without id", s.ID)
				continue
			}
			if questionIDs[q.ID] {
				add("stage %q: question %q declared twice", s.ID, q.ID)
			}
			questionIDs[q.ID] = true
			if len(q.Options) == 0 {
				add("stage %q: question %q has no options", s.ID, q.ID)
			}
		}
		for _, q := range s.Questions {
			for _, f := range q.FollowUps {
				if !questionIDs[f] {
					add("stage %q: question %q follows up unknown question %q", s.ID, q.ID, f)
				}
			}
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}
