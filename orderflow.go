package orderflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/orderflow/internal/logging"
	"github.com/aretw0/orderflow/internal/runtime"
	"github.com/aretw0/orderflow/pkg/adapters/memory"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
	"github.com/aretw0/orderflow/pkg/rules"
	"github.com/aretw0/orderflow/pkg/session"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

// Engine is the high-level entry point of the library.
// It owns the stage graph, the rule engine and the session manager, and
// runs every turn under the session's lock.
type Engine struct {
	graph        *stagegraph.Graph
	source       ports.StageSource
	table        *rules.Table
	rules        *rules.Engine
	orchestrator *runtime.Orchestrator
	sessions     *session.Manager

	store     ports.SessionStore
	locker    ports.DistributedLocker
	lockTTL   time.Duration
	backend   ports.Backend
	catalog   ports.Catalog
	knowledge ports.Knowledge

	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	clock        func() time.Time
	timeout      time.Duration
	historyLimit int
	maxInput     int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithGraph uses g instead of the built-in ordering graph.
func WithGraph(g *stagegraph.Graph) Option {
	return func(e *Engine) {
		e.graph = g
	}
}

// WithStageSource loads the stage graph from src when New runs.
func WithStageSource(src ports.StageSource) Option {
	return func(e *Engine) {
		e.source = src
	}
}

// WithRuleTable replaces the built-in keyword table, rules and derivation policy.
func WithRuleTable(t rules.Table) Option {
	return func(e *Engine) {
		e.table = &t
	}
}

// WithBackend sets the generative backend.
func WithBackend(b ports.Backend) Option {
	return func(e *Engine) {
		e.backend = b
	}
}

// WithCatalog sets the item catalog. The built-in menu is used otherwise.
func WithCatalog(c ports.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithKnowledge sets the knowledge base. The built-in one is used otherwise.
func WithKnowledge(k ports.Knowledge) Option {
	return func(e *Engine) {
		e.knowledge = k
	}
}

// WithSessionStore sets where session records live. Defaults to memory.
func WithSessionStore(s ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker enables distributed per-session locking.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockTTL = ttl
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls chain.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock injects the time source for session timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithBackendTimeout bounds each backend call.
func WithBackendTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithHistoryLimit caps how many messages are forwarded to the backend.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		e.historyLimit = n
	}
}

// WithMaxInputSize caps the byte size of one utterance.
func WithMaxInputSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxInput = n
		}
	}
}

// New initializes an Engine. Without options it runs the built-in ordering
// graph, rules and menu with no backend, so every open-ended turn is
// answered by the fallback ladder.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		clock:    time.Now,
		maxInput: DefaultMaxInputSize,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.clock == nil {
		eng.clock = time.Now
	}

	if eng.graph == nil {
		g, err := eng.loadGraph()
		if err != nil {
			return nil, err
		}
		eng.graph = g
	}
	for _, id := range eng.graph.Unreachable() {
		eng.logger.Warn("stage is unreachable from entry", "stage", id)
	}

	var err error
	if eng.table != nil {
		eng.rules, err = rules.New(eng.graph, *eng.table)
	} else {
		eng.rules, err = rules.Default(eng.graph)
	}
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}

	if eng.catalog == nil || eng.knowledge == nil {
		builtin, err := memory.DefaultCatalog()
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if eng.catalog == nil {
			eng.catalog = builtin
		}
		if eng.knowledge == nil {
			eng.knowledge = builtin
		}
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker), session.WithLockTTL(eng.lockTTL))
	}
	eng.sessions = session.NewManager(eng.store, sessionOpts...)

	runtimeOpts := []runtime.Option{
		runtime.WithCatalog(eng.catalog),
		runtime.WithKnowledge(eng.knowledge),
		runtime.WithHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithClock(eng.clock),
		runtime.WithBackendTimeout(eng.timeout),
		runtime.WithHistoryLimit(eng.historyLimit),
	}
	if eng.backend != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithBackend(eng.backend))
	}
	eng.orchestrator = runtime.New(eng.graph, eng.rules, runtimeOpts...)

	return eng, nil
}

func (e *Engine) loadGraph() (*stagegraph.Graph, error) {
	if e.source == nil {
		return stagegraph.Default()
	}
	entry, stages, err := e.source.LoadStages(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	return stagegraph.New(entry, stages...)
}

// Start opens a fresh session at the entry stage, replacing any previous
// record with the same id, and returns the opening message.
func (e *Engine) Start(ctx context.Context, sessionID string) (*domain.TurnResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	s, err := e.sessions.Start(ctx, sessionID, e.graph.Entry(), e.clock())
	if err != nil {
		return nil, err
	}
	e.logger.Debug("session started", "session_id", sessionID, "stage", s.Stage)
	return e.orchestrator.Open(ctx, s), nil
}

// Send runs one turn. A session that does not exist yet is started first.
// Only input validation and store or lock failures are returned as errors;
// every other problem degrades inside the turn.
func (e *Engine) Send(ctx context.Context, sessionID, utterance string) (*domain.TurnResult, error) {
	input, err := SanitizeInput(utterance, e.maxInput)
	if err != nil {
		return nil, err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, domain.ErrEmptyUtterance
	}

	var res *domain.TurnResult
	_, err = e.sessions.Update(ctx, sessionID, e.graph.Entry(), e.clock(), func(ctx context.Context, s *domain.SessionContext) error {
		res = e.orchestrator.Turn(ctx, s, input)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return res, nil
}

// End drops a session.
func (e *Engine) End(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Session returns a snapshot of a session.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	return e.sessions.Load(ctx, sessionID)
}

// Sessions lists active session ids.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Prune drops sessions idle for longer than maxIdle.
func (e *Engine) Prune(ctx context.Context, maxIdle time.Duration) (int, error) {
	return e.sessions.Prune(ctx, e.clock().Add(-maxIdle))
}

// Graph returns the stage graph the engine runs.
func (e *Engine) Graph() *stagegraph.Graph {
	return e.graph
}

// Rules returns the rule engine.
func (e *Engine) Rules() *rules.Engine {
	return e.rules
}
