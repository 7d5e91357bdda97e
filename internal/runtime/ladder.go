package runtime

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/orderflow/pkg/directive"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
)

// ErrNoBackend is reported to the ladder when no backend is configured.
var ErrNoBackend = errors.New("no backend configured")

// GenericText is the fixed reply of the last ladder rung.
const GenericText = "Sorry, I didn't quite catch that. Here are a few things I can help with."

// generate runs the backend path: one bounded call, then the structured
// parse or the fallback ladder.
func (o *Orchestrator) generate(ctx context.Context, s *domain.SessionContext, utterance string, matched []domain.Rule) *domain.TurnResult {
	req := o.buildRequest(ctx, s, utterance, matched)

	raw, err := o.callBackend(ctx, s, req)
	if err != nil {
		o.logger.Warn("backend call failed", "session_id", s.ID, "stage", s.Stage, "err", err)
		raw = ""
	}

	if sr, ok := directive.ParseReply(raw).(*domain.StructuredReply); ok {
		return o.structured(ctx, s, utterance, sr, domain.RungStructured)
	}
	return o.ladder(ctx, s, utterance, raw, err)
}

func (o *Orchestrator) callBackend(ctx context.Context, s *domain.SessionContext, req ports.Request) (string, error) {
	if o.backend == nil {
		return "", ErrNoBackend
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "orderflow.backend", trace.WithAttributes(
		attribute.String("orderflow.stage", req.Stage),
		attribute.Int("orderflow.messages", len(req.Messages)),
	))
	defer span.End()

	start := time.Now()
	type reply struct {
		raw string
		err error
	}
	done := make(chan reply, 1)
	go func() {
		raw, err := o.backend.Generate(ctx, req)
		done <- reply{raw, err}
	}()

	var (
		raw string
		err error
	)
	// A backend that ignores ctx must not hold the turn past the deadline.
	select {
	case r := <-done:
		raw, err = r.raw, r.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	if o.hooks.OnBackendCall != nil {
		o.hooks.OnBackendCall(ctx, &domain.BackendEvent{
			EventBase: o.event(domain.EventBackendCall, s),
			Duration:  elapsed,
			Err:       err,
		})
	}
	return raw, err
}

// structured turns a structured reply (from the backend or the converter) into a result.
// A backend reply always goes through the validator, so an absent or
// non-successor nextStage is substituted. The converter only moves when it
// inferred a stage.
func (o *Orchestrator) structured(ctx context.Context, s *domain.SessionContext, utterance string, sr *domain.StructuredReply, rung string) *domain.TurnResult {
	res := &domain.TurnResult{
		Diagnostics: domain.Diagnostics{
			Rung:       rung,
			Confidence: sr.Confidence,
			Reasoning:  sr.Reasoning,
		},
	}

	if sr.NextStage != "" || (rung == domain.RungStructured && !o.final(s.Stage)) {
		o.moveTo(ctx, s, res, sr.NextStage, utterance)
	}

	if len(sr.ContextUpdates) > 0 {
		update, err := directive.DecodeContextUpdate(sr.ContextUpdates)
		if err != nil {
			o.logger.Debug("context update ignored", "session_id", s.ID, "err", err)
		} else {
			merge(s, update)
		}
	}

	out := o.parser.Structured(sr, s.Stage)
	res.Text = out.Text
	res.Directives = out.Directives
	if res.Text == "" {
		res.Text = o.parser.Filler(s.Stage)
	}
	return res
}

// ladder runs the three fallback rungs in order; each runs only if the previous produced nothing.
func (o *Orchestrator) ladder(ctx context.Context, s *domain.SessionContext, utterance, raw string, cause error) *domain.TurnResult {
	reason := "reply is not structured"
	if cause != nil {
		reason = cause.Error()
	}

	text := directive.Prose(raw)
	if sr, err := o.converter.Convert(ctx, text, s); err == nil {
		res := o.structured(ctx, s, utterance, sr, domain.RungConverter)
		o.enrich(ctx, s, res)
		o.fallback(ctx, s, domain.RungConverter, reason)
		return res
	}

	next, derived := o.rules.DeriveStage(s.Stage, utterance)
	fillerStage := s.Stage
	if derived {
		fillerStage = next
	}
	if out := o.parser.Inline(text, fillerStage); !out.IsEmpty() {
		res := &domain.TurnResult{
			Diagnostics: domain.Diagnostics{Rung: domain.RungInline, Confidence: 0.3, Reasoning: "inline markers with rule-derived stage"},
		}
		if derived {
			o.moveTo(ctx, s, res, next, utterance)
		}
		res.Text = out.Text
		res.Directives = out.Directives
		o.enrich(ctx, s, res)
		o.fallback(ctx, s, domain.RungInline, reason+"; converter inferred nothing")
		return res
	}

	o.fallback(ctx, s, domain.RungGeneric, reason+"; nothing usable in reply")
	return &domain.TurnResult{
		Text:        GenericText,
		Affordances: GenericAffordances(),
		Diagnostics: domain.Diagnostics{Rung: domain.RungGeneric, Confidence: 0, Reasoning: reason},
	}
}

func (o *Orchestrator) fallback(ctx context.Context, s *domain.SessionContext, rung, cause string) {
	o.logger.Info("fallback ladder", "session_id", s.ID, "stage", s.Stage, "rung", rung, "cause", cause)
	if o.hooks.OnFallback != nil {
		o.hooks.OnFallback(ctx, &domain.FallbackEvent{
			EventBase: o.event(domain.EventFallback, s),
			Rung:      rung,
			Cause:     cause,
		})
	}
}
