// Package runtime runs one conversation turn: question tracking, the backend
// call, directive extraction, transition checks and the fallback ladder.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/orderflow/internal/logging"
	"github.com/aretw0/orderflow/pkg/directive"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
	"github.com/aretw0/orderflow/pkg/questions"
	"github.com/aretw0/orderflow/pkg/rules"
	"github.com/aretw0/orderflow/pkg/stagegraph"
	"github.com/aretw0/orderflow/pkg/transition"
)

var tracer = otel.Tracer("github.com/aretw0/orderflow/internal/runtime")

const (
	// DefaultBackendTimeout bounds the single backend call of a turn.
	DefaultBackendTimeout = 20 * time.Second
	// DefaultHistoryLimit caps the messages sent to the backend.
	DefaultHistoryLimit = 20
	// DefaultCatalogLimit caps the catalog snapshot in the prompt.
	DefaultCatalogLimit = 8
)

// Orchestrator composes the dialogue components into the per-turn cycle.
// It holds no per-session state; every call receives the session explicitly.
type Orchestrator struct {
	graph     *stagegraph.Graph
	tracker   *questions.Tracker
	rules     *rules.Engine
	parser    *directive.Parser
	validator *transition.Validator
	converter *Converter
	prompts   *PromptBuilder

	backend   ports.Backend
	catalog   ports.Catalog
	knowledge ports.Knowledge

	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	clock   func() time.Time
	timeout time.Duration

	historyLimit int
	catalogLimit int
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithBackend sets the generative backend. Without one every backend turn degrades to the ladder.
func WithBackend(b ports.Backend) Option {
	return func(o *Orchestrator) { o.backend = b }
}

// WithCatalog sets the item search used for prompt snapshots and item lists.
func WithCatalog(c ports.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithKnowledge sets the knowledge search used for help questions.
func WithKnowledge(k ports.Knowledge) Option {
	return func(o *Orchestrator) { o.knowledge = k }
}

// WithHooks registers lifecycle hooks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = o.hooks.Merge(h) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBackendTimeout bounds the backend call.
func WithBackendTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHistoryLimit caps the messages forwarded to the backend.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// New wires an orchestrator over a validated graph and rule engine.
func New(graph *stagegraph.Graph, engine *rules.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		graph:        graph,
		tracker:      questions.New(graph),
		rules:        engine,
		validator:    transition.New(graph, engine),
		prompts:      NewPromptBuilder(),
		logger:       logging.NewNop(),
		clock:        time.Now,
		timeout:      DefaultBackendTimeout,
		historyLimit: DefaultHistoryLimit,
		catalogLimit: DefaultCatalogLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.parser = directive.NewParser(graph, o.logger)
	o.converter = NewConverter(engine, o.catalog)
	return o
}

// Graph returns the stage graph.
func (o *Orchestrator) Graph() *stagegraph.Graph {
	return o.graph
}

// final reports whether stageID has no successors. Proposals there are moot.
func (o *Orchestrator) final(stageID string) bool {
	st, ok := o.graph.Stage(stageID)
	return ok && st.IsFinal()
}

// Open renders the opening result for a fresh session without mutating it.
func (o *Orchestrator) Open(ctx context.Context, s *domain.SessionContext) *domain.TurnResult {
	stage, _ := o.graph.Stage(s.Stage)
	res := &domain.TurnResult{
		Text:        stage.Filler,
		Stage:       s.Stage,
		Diagnostics: domain.Diagnostics{Rung: domain.RungQuestion, Confidence: 1},
	}
	if q, ok := o.tracker.NextQuestion(s.Stage, s.AnsweredIDs(s.Stage)); ok && q.Required {
		res.Text = joinText(res.Text, q.Prompt)
		res.Directives = append(res.Directives, domain.QuestionDirective(s.Stage, q))
	}
	res.Affordances = o.affordances(s.Stage, res)
	return res
}

// Turn processes one user utterance and mutates s exactly once.
// It never fails: every recoverable problem degrades to a simpler result.
func (o *Orchestrator) Turn(ctx context.Context, s *domain.SessionContext, utterance string) *domain.TurnResult {
	ctx, span := tracer.Start(ctx, "orderflow.turn", trace.WithAttributes(
		attribute.String("orderflow.session.id", s.ID),
		attribute.String("orderflow.stage", s.Stage),
		attribute.Int("orderflow.turn", s.Turn+1),
	))
	defer span.End()

	now := o.clock()
	from := s.Stage
	s.Append(domain.RoleUser, utterance, now)

	if o.hooks.OnTurnStart != nil {
		o.hooks.OnTurnStart(ctx, &domain.TurnEvent{
			EventBase: o.event(domain.EventTurnStart, s),
			Turn:      s.Turn + 1,
			Stage:     from,
		})
	}

	matched := o.rules.ApplicableRules(from, utterance)
	if len(matched) > 0 {
		s.Intent = matched[0].Action
	}

	var res *domain.TurnResult
	if q, ok := o.interceptingQuestion(s, utterance); ok {
		res = o.answer(s, q, utterance)
	} else {
		res = o.generate(ctx, s, utterance, matched)
	}
	res.Diagnostics.MatchedRules = ruleIDs(matched)

	o.finish(ctx, s, from, res, now)

	span.SetAttributes(
		attribute.String("orderflow.rung", res.Diagnostics.Rung),
		attribute.String("orderflow.stage.next", res.Stage),
	)
	return res
}

func (o *Orchestrator) finish(ctx context.Context, s *domain.SessionContext, from string, res *domain.TurnResult, now time.Time) {
	entered := s.Stage != from
	if entered && res.Diagnostics.Rung != domain.RungStructured {
		for _, d := range o.entryDirectives(ctx, s) {
			if d.Type.IsQuestion() || !hasType(res.Directives, d.Type) {
				res.Directives = append(res.Directives, d)
			}
		}
		if res.Text == "" {
			res.Text = o.parser.Filler(s.Stage)
		}
	}

	res.Stage = s.Stage
	res.Affordances = o.affordances(s.Stage, res)

	s.Append(domain.RoleAssistant, res.Text, now)
	s.Turn++
	s.LastActivity = now

	if entered {
		o.logger.Info("stage changed", "session_id", s.ID, "from", from, "to", s.Stage, "rung", res.Diagnostics.Rung)
		if o.hooks.OnStageChange != nil {
			o.hooks.OnStageChange(ctx, &domain.StageEvent{
				EventBase: o.event(domain.EventStageChange, s),
				From:      from,
				To:        s.Stage,
			})
		}
	}
	if o.hooks.OnTurnEnd != nil {
		o.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
			EventBase: o.event(domain.EventTurnEnd, s),
			Turn:      s.Turn,
			Stage:     s.Stage,
			Rung:      res.Diagnostics.Rung,
			Result:    res,
		})
	}
}

// moveTo applies a validated stage and reports substitutions.
func (o *Orchestrator) moveTo(ctx context.Context, s *domain.SessionContext, res *domain.TurnResult, proposed, utterance string) {
	d := o.validator.Decide(s.Stage, proposed, utterance)
	if sub := d.Substitution(s.Stage, proposed); sub != nil {
		res.Diagnostics.Substitution = sub
		o.logger.Info("stage proposal substituted",
			"session_id", s.ID,
			"stage", s.Stage,
			"proposed", proposed,
			"chosen", sub.Chosen,
			"reason", sub.Reason,
		)
		if o.hooks.OnSubstitution != nil {
			o.hooks.OnSubstitution(ctx, &domain.SubstitutionEvent{
				EventBase:    o.event(domain.EventSubstitution, s),
				Substitution: *sub,
			})
		}
	}
	s.MoveTo(d.Stage)
}

func (o *Orchestrator) event(t domain.EventType, s *domain.SessionContext) domain.EventBase {
	return domain.EventBase{Timestamp: o.clock(), Type: t, SessionID: s.ID}
}

func ruleIDs(rs []domain.Rule) []string {
	if len(rs) == 0 {
		return nil
	}
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func hasType(ds []domain.Directive, t domain.DirectiveType) bool {
	for _, d := range ds {
		if d.Type == t {
			return true
		}
	}
	return false
}

func joinText(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}
