// Package questions tracks which structured questions of a stage still need an answer.
//
// The tracker is pure: it reads the stage graph and an answered-id set and never
// mutates either.
package questions

import "github.com/aretw0/orderflow/pkg/domain"

// Source exposes the questions declared for a stage.
// *stagegraph.Graph satisfies it.
type Source interface {
	Questions(stageID string) ([]domain.Question, bool)
}

// Status summarizes how far a stage's questions have been answered.
type Status struct {
	RequiredAnswered int  `json:"required_answered"`
	RequiredTotal    int  `json:"required_total"`
	OptionalAnswered int  `json:"optional_answered"`
	OptionalTotal    int  `json:"optional_total"`
	Complete         bool `json:"complete"`
}

// Tracker answers question-flow queries against a stage graph.
type Tracker struct {
	source Source
}

// New creates a tracker over the given graph.
func New(source Source) *Tracker {
	return &Tracker{source: source}
}

// NextQuestion returns the first unanswered required question in declaration order,
// then the first unanswered optional one. It returns false when nothing is pending
// or the stage is unknown.
func (t *Tracker) NextQuestion(stageID string, answered map[string]bool) (domain.Question, bool) {
	qs, ok := t.source.Questions(stageID)
	if !ok {
		return domain.Question{}, false
	}
	for _, q := range qs {
		if q.Required && !answered[q.ID] {
			return q, true
		}
	}
	for _, q := range qs {
		if !q.Required && !answered[q.ID] {
			return q, true
		}
	}
	return domain.Question{}, false
}

// ValidateAnswer reports whether answer is exactly one of the question's options.
// No trimming or case folding is applied.
func (t *Tracker) ValidateAnswer(stageID, questionID, answer string) bool {
	q, ok := t.Question(stageID, questionID)
	if !ok {
		return false
	}
	return q.Accepts(answer)
}

// Question looks up one question of a stage.
func (t *Tracker) Question(stageID, questionID string) (domain.Question, bool) {
	qs, ok := t.source.Questions(stageID)
	if !ok {
		return domain.Question{}, false
	}
	for _, q := range qs {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}

// CompletionStatus counts answered questions. A stage is complete when every
// required question is answered; a stage without required questions is always complete.
func (t *Tracker) CompletionStatus(stageID string, answered map[string]bool) Status {
	var st Status
	qs, _ := t.source.Questions(stageID)
	for _, q := range qs {
		if q.Required {
			st.RequiredTotal++
			if answered[q.ID] {
				st.RequiredAnswered++
			}
			continue
		}
		st.OptionalTotal++
		if answered[q.ID] {
			st.OptionalAnswered++
		}
	}
	st.Complete = st.RequiredAnswered == st.RequiredTotal
	return st
}
