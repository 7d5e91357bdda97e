package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/orderflow/pkg/domain"
)

// interceptingQuestion returns the pending question that claims the utterance.
// A pending required question always claims it; an optional one only when the
// utterance is one of its options.
func (o *Orchestrator) interceptingQuestion(s *domain.SessionContext, utterance string) (domain.Question, bool) {
	q, ok := o.tracker.NextQuestion(s.Stage, s.AnsweredIDs(s.Stage))
	if !ok {
		return domain.Question{}, false
	}
	if q.Required || o.tracker.ValidateAnswer(s.Stage, q.ID, utterance) {
		return q, true
	}
	return domain.Question{}, false
}

// answer handles the structured-question path. The backend is never called.
func (o *Orchestrator) answer(s *domain.SessionContext, q domain.Question, utterance string) *domain.TurnResult {
	stage := s.Stage
	res := &domain.TurnResult{
		Diagnostics: domain.Diagnostics{Rung: domain.RungQuestion, Confidence: 1},
	}

	if !o.tracker.ValidateAnswer(stage, q.ID, utterance) {
		o.logger.Debug("answer rejected", "session_id", s.ID, "stage", stage, "question_id", q.ID)
		res.Text = reask(q)
		res.Directives = []domain.Directive{domain.QuestionDirective(stage, q)}
		res.Diagnostics.Reasoning = fmt.Sprintf("answer to %s is not one of its options", q.ID)
		return res
	}

	s.RecordAnswer(stage, q.ID, utterance)
	if s.Preferences == nil {
		s.Preferences = make(map[string]string)
	}
	s.Preferences[q.ID] = utterance
	o.logger.Debug("answer recorded", "session_id", s.ID, "stage", stage, "question_id", q.ID)

	status := o.tracker.CompletionStatus(stage, s.AnsweredIDs(stage))
	if !status.Complete {
		next, ok := o.tracker.NextQuestion(stage, s.AnsweredIDs(stage))
		if ok {
			res.Text = joinText(ack(utterance), next.Prompt)
			res.Directives = []domain.Directive{domain.QuestionDirective(stage, next)}
			res.Diagnostics.Reasoning = fmt.Sprintf("recorded %s, asking %s", q.ID, next.ID)
			return res
		}
	}

	// No proposal: the validator falls back to the rule-derived successor.
	s.MoveTo(o.validator.Validate(stage, "", utterance))
	res.Text = ack(utterance)
	if s.Stage != stage {
		res.Text = joinText(res.Text, o.parser.Filler(s.Stage))
		res.Diagnostics.Reasoning = fmt.Sprintf("stage %s complete, moved to %s", stage, s.Stage)
	} else {
		res.Diagnostics.Reasoning = fmt.Sprintf("stage %s complete, holding", stage)
	}
	return res
}

func reask(q domain.Question) string {
	return fmt.Sprintf("%s Please choose one of: %s.", q.Prompt, strings.Join(q.Options, ", "))
}

func ack(answer string) string {
	return fmt.Sprintf("Noted: %s.", answer)
}
