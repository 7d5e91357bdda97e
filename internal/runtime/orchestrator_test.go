package runtime_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/orderflow/internal/runtime"
	"github.com/aretw0/orderflow/pkg/adapters/memory"
	"github.com/aretw0/orderflow/pkg/adapters/scripted"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
	"github.com/aretw0/orderflow/pkg/rules"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newOrchestrator(t *testing.T, opts ...runtime.Option) *runtime.Orchestrator {
	t.Helper()
	graph := stagegraph.MustDefault()
	engine, err := rules.Default(graph)
	require.NoError(t, err)
	catalog, err := memory.DefaultCatalog()
	require.NoError(t, err)

	base := []runtime.Option{
		runtime.WithCatalog(catalog),
		runtime.WithKnowledge(catalog),
		runtime.WithClock(func() time.Time { return epoch }),
	}
	return runtime.New(graph, engine, append(base, opts...)...)
}

func sessionAt(stage string) *domain.SessionContext {
	return domain.NewSessionContext("s1", stage, epoch)
}

func types(ds []domain.Directive) []domain.DirectiveType {
	out := make([]domain.DirectiveType, len(ds))
	for i, d := range ds {
		out[i] = d.Type
	}
	return out
}

func TestTurn_InvalidAnswerReasks(t *testing.T) {
	backend := scripted.New()
	o := newOrchestrator(t, runtime.WithBackend(backend))
	s := sessionAt("greeting")

	res := o.Turn(context.Background(), s, "hi")

	assert.Equal(t, "greeting", res.Stage)
	assert.Equal(t, "greeting", s.Stage)
	require.Len(t, res.Directives, 1)
	d := res.Directives[0]
	assert.Equal(t, domain.DirectiveMultipleChoiceQuestion, d.Type)
	assert.Equal(t, "visit_purpose", d.Params[domain.ParamQuestionID])
	assert.Equal(t, []string{"Place an order", "Browse the menu", "Ask a question"}, d.Params[domain.ParamOptions])
	assert.Equal(t, domain.RungQuestion, res.Diagnostics.Rung)
	assert.Zero(t, backend.Calls(), "question path never calls the backend")
	assert.Empty(t, s.AnsweredIDs("greeting"))
}

func TestTurn_ValidAnswerAdvances(t *testing.T) {
	backend := scripted.New()
	o := newOrchestrator(t, runtime.WithBackend(backend))
	s := sessionAt("needs_assessment")

	res := o.Turn(context.Background(), s, "Vegan")

	assert.Equal(t, "menu_browsing", res.Stage)
	assert.Equal(t, "menu_browsing", s.Stage)
	assert.Equal(t, "needs_assessment", s.PreviousStage)
	assert.True(t, s.AnsweredIDs("needs_assessment")["dietary_restrictions"])
	assert.Equal(t, "Vegan", s.Preferences["dietary_restrictions"])
	assert.Zero(t, backend.Calls())
	assert.True(t, strings.HasPrefix(res.Text, "Noted: Vegan."))

	require.NotEmpty(t, res.Directives)
	list := res.Directives[0]
	assert.Equal(t, domain.DirectiveItemList, list.Type)
	ids, ok := list.Params[domain.ParamItems].([]string)
	require.True(t, ok)
	assert.Contains(t, ids, "falafel-bowl")
	assert.NotContains(t, ids, "margherita", "vegan preference filters the list")
}

func TestTurn_AnswerSequence(t *testing.T) {
	o := newOrchestrator(t)
	s := sessionAt("delivery_details")
	s.SelectedItems = []string{"pad-thai"}

	res := o.Turn(context.Background(), s, "Pickup")
	assert.Equal(t, "confirmation", res.Stage)
	assert.Equal(t, 1, s.Turn)

	s = sessionAt("greeting")
	res = o.Turn(context.Background(), s, "Browse the menu")
	assert.Equal(t, "menu_browsing", res.Stage)
	assert.Equal(t, domain.DirectiveItemList, res.Directives[0].Type)
}

func TestTurn_OptionalQuestion(t *testing.T) {
	backend := scripted.New().Push(`{"content": "Sure, take your time."}`)
	o := newOrchestrator(t, runtime.WithBackend(backend))

	t.Run("valid option is recorded", func(t *testing.T) {
		s := sessionAt("customization")
		s.RecordAnswer("customization", "portion_size", "Large")

		res := o.Turn(context.Background(), s, "Hot")

		assert.Equal(t, domain.RungQuestion, res.Diagnostics.Rung)
		assert.True(t, s.AnsweredIDs("customization")["spice_level"])
		assert.Equal(t, "order_review", s.Stage)
	})

	t.Run("other text goes to the backend", func(t *testing.T) {
		s := sessionAt("customization")
		s.RecordAnswer("customization", "portion_size", "Large")

		res := o.Turn(context.Background(), s, "make it quick")

		assert.Equal(t, domain.RungStructured, res.Diagnostics.Rung)
		assert.Equal(t, "order_review", s.Stage, "the reply proposes nothing, so the stage advances by rule")
		assert.Equal(t, 1, backend.Calls())
	})
}

func TestTurn_BackEdgeAsksAgain(t *testing.T) {
	backend := scripted.New().Push(`{"content": "Let's look again.", "nextStage": "order_review"}`)
	o := newOrchestrator(t, runtime.WithBackend(backend))
	s := sessionAt("order_review")
	s.SelectedItems = []string{"pad-thai"}
	ctx := context.Background()

	res := o.Turn(ctx, s, "No")
	require.Equal(t, "item_selection", res.Stage)

	res = o.Turn(ctx, s, "that's all")
	require.Equal(t, "order_review", res.Stage)
	assert.Empty(t, s.AnsweredIDs("order_review"))

	res = o.Turn(ctx, s, "whatever")
	assert.Equal(t, domain.RungQuestion, res.Diagnostics.Rung)
	assert.Equal(t, "order_review", res.Stage)
	require.Len(t, res.Directives, 1)
	assert.Equal(t, "confirm_order", res.Directives[0].Params[domain.ParamQuestionID])
	assert.Equal(t, 1, backend.Calls())
}

func TestTurn_StructuredRoundTrip(t *testing.T) {
	reply := `{
		"content": "A few picks for you.",
		"directives": [
			{"type": "item-list", "title": "Tonight", "params": {"items": ["pad-thai", "sorbet"]}},
			{"type": "order-summary", "title": "So far"}
		],
		"nextStage": "item_selection",
		"confidence": 0.9,
		"reasoning": "customer wants to pick"
	}`
	backend := scripted.New().Push(reply)
	o := newOrchestrator(t, runtime.WithBackend(backend))
	s := sessionAt("menu_browsing")

	res := o.Turn(context.Background(), s, "anything good today")

	assert.Equal(t, "item_selection", res.Stage)
	assert.Equal(t, "A few picks for you.", res.Text)
	assert.Equal(t, []domain.DirectiveType{domain.DirectiveItemList, domain.DirectiveOrderSummary}, types(res.Directives))
	assert.Equal(t, "Tonight", res.Directives[0].Title)
	assert.Equal(t, []any{"pad-thai", "sorbet"}, res.Directives[0].Params[domain.ParamItems])
	assert.Equal(t, domain.RungStructured, res.Diagnostics.Rung)
	assert.InDelta(t, 0.9, res.Diagnostics.Confidence, 1e-9)
	assert.Nil(t, res.Diagnostics.Substitution)

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "menu_browsing", reqs[0].Stage)
	assert.Contains(t, reqs[0].Prompt, "Allowed next stages: item_selection, needs_assessment, support.")
	assert.Equal(t, "anything good today", reqs[0].Messages[len(reqs[0].Messages)-1].Content)
}

func TestTurn_StructuredProposals(t *testing.T) {
	tests := []struct {
		name      string
		stage     string
		reply     string
		utterance string
		wantStage string
		wantText  string
		wantTypes []domain.DirectiveType
		wantSub   *domain.Substitution
	}{
		{
			name:      "missing nextStage is derived",
			stage:     "menu_browsing",
			reply:     `{"content": "Happy to help."}`,
			utterance: "hmm",
			wantStage: "item_selection",
			wantText:  "Happy to help.",
			wantSub:   &domain.Substitution{From: "menu_browsing", Proposed: "", Chosen: "item_selection", Reason: "missing+derived"},
		},
		{
			name:      "self proposal without a self edge is derived",
			stage:     "menu_browsing",
			reply:     `{"content": "Sure.", "nextStage": "menu_browsing"}`,
			utterance: "hmm",
			wantStage: "item_selection",
			wantText:  "Sure.",
			wantSub:   &domain.Substitution{From: "menu_browsing", Proposed: "menu_browsing", Chosen: "item_selection", Reason: "illegal+derived"},
		},
		{
			name:      "missing nextStage follows the utterance",
			stage:     "item_selection",
			reply:     `{"content": "Let's tune it."}`,
			utterance: "make it spicy",
			wantStage: "customization",
			wantText:  "Let's tune it.",
			wantSub:   &domain.Substitution{From: "item_selection", Proposed: "", Chosen: "customization", Reason: "missing+derived"},
		},
		{
			name:      "final stage records nothing",
			stage:     "confirmation",
			reply:     `{"content": "Enjoy your meal."}`,
			utterance: "thanks",
			wantStage: "confirmation",
			wantText:  "Enjoy your meal.",
		},
		{
			name:      "malformed fields keep the reply structured",
			stage:     "menu_browsing",
			reply:     `{"content":"Here are our dishes","directives":[{"type":"item-list","title":"Picks","params":"oops"}],"confidence":"high"}`,
			utterance: "anything",
			wantStage: "item_selection",
			wantText:  "Here are our dishes",
			wantSub:   &domain.Substitution{From: "menu_browsing", Proposed: "", Chosen: "item_selection", Reason: "missing+derived"},
		},
		{
			name:      "good directives survive a bad sibling",
			stage:     "menu_browsing",
			reply:     `{"content":"Here you go","directives":[{"type":"item-list","params":"oops"},{"type":"item-detail","title":"Pad thai","data":"pad-thai"}],"nextStage":"item_selection"}`,
			utterance: "anything",
			wantStage: "item_selection",
			wantText:  "Here you go",
			wantTypes: []domain.DirectiveType{domain.DirectiveItemDetail},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subs []domain.Substitution
			hooks := domain.LifecycleHooks{
				OnSubstitution: func(_ context.Context, e *domain.SubstitutionEvent) { subs = append(subs, e.Substitution) },
			}
			backend := scripted.New().Push(tt.reply)
			o := newOrchestrator(t, runtime.WithBackend(backend), runtime.WithHooks(hooks))
			s := sessionAt(tt.stage)

			res := o.Turn(context.Background(), s, tt.utterance)

			assert.Equal(t, domain.RungStructured, res.Diagnostics.Rung)
			assert.Equal(t, tt.wantStage, res.Stage)
			assert.Equal(t, tt.wantText, res.Text)
			assert.NotContains(t, res.Text, "{")
			if tt.wantTypes == nil {
				assert.Empty(t, res.Directives)
			} else {
				assert.Equal(t, tt.wantTypes, types(res.Directives))
			}
			assert.NotEmpty(t, res.Affordances)
			assert.Equal(t, tt.wantSub, res.Diagnostics.Substitution)
			if tt.wantSub == nil {
				assert.Empty(t, subs)
			} else {
				assert.Equal(t, []domain.Substitution{*tt.wantSub}, subs)
			}
		})
	}
}

func TestTurn_IllegalProposalIsSubstituted(t *testing.T) {
	var (
		mu   sync.Mutex
		subs []domain.Substitution
	)
	hooks := domain.LifecycleHooks{
		OnSubstitution: func(_ context.Context, e *domain.SubstitutionEvent) {
			mu.Lock()
			defer mu.Unlock()
			subs = append(subs, e.Substitution)
		},
	}
	backend := scripted.New().Push(`{"content": "All done!", "nextStage": "confirmation"}`)
	o := newOrchestrator(t, runtime.WithBackend(backend), runtime.WithHooks(hooks))
	s := sessionAt("menu_browsing")

	res := o.Turn(context.Background(), s, "I want the pad thai")

	assert.Equal(t, "item_selection", res.Stage)
	require.NotNil(t, res.Diagnostics.Substitution)
	want := domain.Substitution{From: "menu_browsing", Proposed: "confirmation", Chosen: "item_selection", Reason: "illegal+derived"}
	assert.Equal(t, want, *res.Diagnostics.Substitution)
	assert.Equal(t, []domain.Substitution{want}, subs)
	assert.Equal(t, "start_order", s.Intent)
	assert.Contains(t, res.Diagnostics.MatchedRules, "start_order")
}

func TestTurn_ContextUpdatesMerge(t *testing.T) {
	backend := scripted.New().Push(`{
		"content": "Added.",
		"contextUpdates": {"intent": "add_item", "preferences": {"spice": "mild"}, "selectedItems": ["pad-thai", "sorbet"]}
	}`)
	o := newOrchestrator(t, runtime.WithBackend(backend))
	s := sessionAt("item_selection")
	s.SelectedItems = []string{"pad-thai"}

	o.Turn(context.Background(), s, "that one please")

	assert.Equal(t, "add_item", s.Intent)
	assert.Equal(t, "mild", s.Preferences["spice"])
	assert.Equal(t, []string{"pad-thai", "sorbet"}, s.SelectedItems)
}

func TestTurn_FallbackLadder(t *testing.T) {
	tests := []struct {
		name      string
		stage     string
		reply     string
		utterance string
		wantRung  string
		wantStage string
		wantTypes []domain.DirectiveType
	}{
		{
			name:      "converter finds an item-list cue",
			stage:     "menu_browsing",
			reply:     "Here are some dishes we love.",
			utterance: "anything",
			wantRung:  domain.RungConverter,
			wantStage: "menu_browsing",
			wantTypes: []domain.DirectiveType{domain.DirectiveItemList},
		},
		{
			name:      "converter reads an offer as a yes or no question",
			stage:     "item_selection",
			reply:     "Good choice. Would you like a drink with that?",
			utterance: "the curry",
			wantRung:  domain.RungConverter,
			wantStage: "item_selection",
			wantTypes: []domain.DirectiveType{domain.DirectiveBinaryChoiceQuestion},
		},
		{
			name:      "inline markers with a derived stage",
			stage:     "menu_browsing",
			reply:     `Sure thing marker(item-detail:Tofu pad thai:pad-thai)`,
			utterance: "what's good?",
			wantRung:  domain.RungInline,
			wantStage: "item_selection",
			wantTypes: []domain.DirectiveType{domain.DirectiveItemDetail},
		},
		{
			name:      "broken json is never shown",
			stage:     "menu_browsing",
			reply:     `Here are some dishes {"directives": [}`,
			utterance: "anything",
			wantRung:  domain.RungConverter,
			wantStage: "menu_browsing",
			wantTypes: []domain.DirectiveType{domain.DirectiveItemList},
		},
		{
			name:      "marked item list is not inferred again",
			stage:     "item_selection",
			reply:     `Here are my picks marker(item-list:Picks:pad-thai,sorbet)`,
			utterance: "anything",
			wantRung:  domain.RungInline,
			wantStage: "customization",
			wantTypes: []domain.DirectiveType{domain.DirectiveItemList, domain.DirectiveBinaryChoiceQuestion},
		},
		{
			name:      "plain text moves on by rule",
			stage:     "support",
			reply:     "Thanks for asking.",
			utterance: "cool",
			wantRung:  domain.RungInline,
			wantStage: "greeting",
			wantTypes: []domain.DirectiveType{domain.DirectiveMultipleChoiceQuestion},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rungs []string
			hooks := domain.LifecycleHooks{
				OnFallback: func(_ context.Context, e *domain.FallbackEvent) { rungs = append(rungs, e.Rung) },
			}
			backend := scripted.New().Push(tt.reply)
			o := newOrchestrator(t, runtime.WithBackend(backend), runtime.WithHooks(hooks))
			s := sessionAt(tt.stage)

			res := o.Turn(context.Background(), s, tt.utterance)

			assert.Equal(t, tt.wantRung, res.Diagnostics.Rung)
			assert.Equal(t, tt.wantStage, res.Stage)
			assert.Equal(t, tt.wantTypes, types(res.Directives))
			assert.NotEmpty(t, res.Text)
			assert.NotContains(t, res.Text, "{")
			assert.Equal(t, []string{tt.wantRung}, rungs)
		})
	}
}

func TestTurn_MarkedListKeepsItsData(t *testing.T) {
	backend := scripted.New().Push(`Here are my picks marker(item-list:Picks:pad-thai,sorbet)`)
	o := newOrchestrator(t, runtime.WithBackend(backend))
	s := sessionAt("item_selection")

	res := o.Turn(context.Background(), s, "anything")

	var lists []domain.Directive
	for _, d := range res.Directives {
		if d.Type == domain.DirectiveItemList {
			lists = append(lists, d)
		}
	}
	require.Len(t, lists, 1)
	assert.Equal(t, "Picks", lists[0].Title)
	assert.Equal(t, []string{"pad-thai", "sorbet"}, lists[0].Params[domain.ParamItems])
	assert.Equal(t, "Here are my picks", res.Text)
}

func TestTurn_GenericRung(t *testing.T) {
	blocking := ports.BackendFunc(func(ctx context.Context, _ ports.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	tests := []struct {
		name string
		opts []runtime.Option
	}{
		{name: "no backend"},
		{name: "backend error", opts: []runtime.Option{runtime.WithBackend(scripted.New().PushError("upstream unavailable"))}},
		{name: "empty reply", opts: []runtime.Option{runtime.WithBackend(scripted.New().Push(""))}},
		{name: "truncated json", opts: []runtime.Option{runtime.WithBackend(scripted.New().Push(`{"content": "unterminated`))}},
		{name: "timeout", opts: []runtime.Option{runtime.WithBackend(blocking), runtime.WithBackendTimeout(20 * time.Millisecond)}},
		{name: "slow scripted reply", opts: []runtime.Option{
			runtime.WithBackend(scripted.New().PushDelayed(`{"content": "late"}`, time.Second)),
			runtime.WithBackendTimeout(20 * time.Millisecond),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, tt.opts...)
			s := sessionAt("menu_browsing")

			res := o.Turn(context.Background(), s, "zzz qqq")

			assert.Equal(t, domain.RungGeneric, res.Diagnostics.Rung)
			assert.Equal(t, runtime.GenericText, res.Text)
			assert.Equal(t, runtime.GenericAffordances(), res.Affordances)
			assert.Equal(t, "menu_browsing", res.Stage)
			assert.Equal(t, "menu_browsing", s.Stage)
			assert.Zero(t, res.Diagnostics.Confidence)
		})
	}
}

func TestTurn_EveryResultOffersSomething(t *testing.T) {
	replies := []string{
		"",
		"ok",
		`{"content": "x", "nextStage": "nowhere"}`,
		`{"directives": [{"type": "hologram", "title": "?"}]}`,
		"marker(item-list:Menu:)",
	}
	graph := stagegraph.MustDefault()
	for _, reply := range replies {
		for _, id := range graph.IDs() {
			backend := scripted.New().Push(reply)
			o := newOrchestrator(t, runtime.WithBackend(backend))
			s := sessionAt(id)

			res := o.Turn(context.Background(), s, "something else")

			assert.NotEmpty(t, res.Text, "stage %s reply %q", id, reply)
			assert.True(t, len(res.Directives)+len(res.Affordances) > 0, "stage %s reply %q", id, reply)
			assert.True(t, res.Stage == id || graph.IsEdge(id, res.Stage), "stage %s moved to %s", id, res.Stage)
		}
	}
}

func TestTurn_Bookkeeping(t *testing.T) {
	var starts, ends, changes int
	hooks := domain.LifecycleHooks{
		OnTurnStart:   func(context.Context, *domain.TurnEvent) { starts++ },
		OnTurnEnd:     func(context.Context, *domain.TurnEvent) { ends++ },
		OnStageChange: func(context.Context, *domain.StageEvent) { changes++ },
	}
	later := epoch.Add(time.Minute)
	o := newOrchestrator(t, runtime.WithHooks(hooks), runtime.WithClock(func() time.Time { return later }))
	s := sessionAt("greeting")

	o.Turn(context.Background(), s, "hi")
	o.Turn(context.Background(), s, "Place an order")

	assert.Equal(t, 2, s.Turn)
	assert.Equal(t, later, s.LastActivity)
	assert.Len(t, s.Messages, 4)
	assert.Equal(t, domain.RoleUser, s.Messages[0].Role)
	assert.Equal(t, domain.RoleAssistant, s.Messages[1].Role)
	assert.Equal(t, 2, starts)
	assert.Equal(t, 2, ends)
	assert.Equal(t, 1, changes)
	assert.Equal(t, "needs_assessment", s.Stage)
}

func TestOpen(t *testing.T) {
	o := newOrchestrator(t)
	s := sessionAt("greeting")

	res := o.Open(context.Background(), s)

	assert.Equal(t, "greeting", res.Stage)
	require.Len(t, res.Directives, 1)
	assert.Equal(t, "visit_purpose", res.Directives[0].Params[domain.ParamQuestionID])
	assert.NotEmpty(t, res.Affordances)
	assert.Zero(t, s.Turn, "opening does not count as a turn")
}
