package orderflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/orderflow"
	"github.com/aretw0/orderflow/pkg/adapters/scripted"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/rules"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

type staticSource struct {
	entry  string
	stages []domain.Stage
	err    error
}

func (s staticSource) LoadStages(context.Context) (string, []domain.Stage, error) {
	return s.entry, s.stages, s.err
}

func TestEngine_Conversation(t *testing.T) {
	backend := scripted.New().
		Push(`{"content": "Great picks!", "directives": [{"type": "item-list", "title": "Vegan", "data": "pad-thai,sorbet"}], "nextStage": "item_selection", "contextUpdates": {"selectedItems": ["pad-thai"]}}`)
	eng, err := orderflow.New(orderflow.WithBackend(backend))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Start(ctx, "s1")
	require.NoError(t, err)

	steps := []struct {
		utterance string
		stage     string
	}{
		{"Place an order", "needs_assessment"},
		{"Vegan", "menu_browsing"},
		{"the pad thai and the sorbet look nice", "item_selection"},
	}
	for _, step := range steps {
		res, err := eng.Send(ctx, "s1", step.utterance)
		require.NoError(t, err, step.utterance)
		assert.Equal(t, step.stage, res.Stage, step.utterance)
	}

	s, err := eng.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Turn)
	assert.Equal(t, []string{"pad-thai"}, s.SelectedItems)
	assert.Equal(t, "Vegan", s.Preferences["dietary_restrictions"])
	assert.Equal(t, 1, backend.Calls())
}

func TestEngine_SendValidation(t *testing.T) {
	eng, err := orderflow.New(orderflow.WithMaxInputSize(16))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Send(ctx, "s1", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyUtterance)

	_, err = eng.Send(ctx, "s1", "this message is far too long")
	assert.ErrorIs(t, err, orderflow.ErrInputTooLarge)

	_, err = eng.Session(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "rejected input must not create a session")

	res, err := eng.Send(ctx, "s1", "hi\x00")
	require.NoError(t, err)
	assert.Equal(t, "greeting", res.Stage, "unknown session starts at entry")
}

func TestEngine_EndAndPrune(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	eng, err := orderflow.New(orderflow.WithClock(clock))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Start(ctx, "old")
	require.NoError(t, err)
	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()
	_, err = eng.Start(ctx, "fresh")
	require.NoError(t, err)

	n, err := eng.Prune(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, eng.End(ctx, "fresh"))
	ids, err := eng.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_ConcurrentSendsAreSerialized(t *testing.T) {
	eng, err := orderflow.New()
	require.NoError(t, err)
	ctx := context.Background()
	_, err = eng.Start(ctx, "busy")
	require.NoError(t, err)

	const turns = 25
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Send(ctx, "busy", "hello there")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := eng.Session(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, turns, s.Turn)
	assert.Len(t, s.Messages, 2*turns)
}

func TestEngine_Hooks(t *testing.T) {
	var turns, fallbacks atomic.Int32
	hooks := domain.LifecycleHooks{
		OnTurnEnd:  func(context.Context, *domain.TurnEvent) { turns.Add(1) },
		OnFallback: func(context.Context, *domain.FallbackEvent) { fallbacks.Add(1) },
	}
	eng, err := orderflow.New(orderflow.WithLifecycleHooks(hooks))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Send(ctx, "s1", "Browse the menu")
	require.NoError(t, err)
	res, err := eng.Send(ctx, "s1", "zzz")
	require.NoError(t, err)

	assert.Equal(t, domain.RungGeneric, res.Diagnostics.Rung)
	assert.Equal(t, int32(2), turns.Load())
	assert.Equal(t, int32(1), fallbacks.Load())
}

func TestEngine_CustomGraph(t *testing.T) {
	b := stagegraph.NewBuilder("greeting")
	b.Add("greeting").Go("menu_browsing").Ask("ready", "Ready to order?", "Yes", "No").Filler("Hi.")
	b.Add("menu_browsing").Go("greeting").Hint(domain.DirectiveItemList).Filler("Menu.")
	g, err := b.Build()
	require.NoError(t, err)

	table := rules.Table{Keywords: rules.KeywordTable{"browse": {"menu"}}}
	eng, err := orderflow.New(orderflow.WithGraph(g), orderflow.WithRuleTable(table))
	require.NoError(t, err)

	res, err := eng.Send(context.Background(), "s1", "Yes")
	require.NoError(t, err)
	assert.Equal(t, "menu_browsing", res.Stage)
	assert.Same(t, g, eng.Graph())
}

func TestEngine_StageSource(t *testing.T) {
	src := staticSource{entry: "a", stages: []domain.Stage{
		{ID: "a", Next: []string{"b"}},
		{ID: "b"},
	}}
	_, err := orderflow.New(orderflow.WithStageSource(src))
	assert.Error(t, err, "the built-in rules reference stages this graph lacks")

	broken := staticSource{err: errors.New("disk on fire")}
	_, err = orderflow.New(orderflow.WithStageSource(broken))
	assert.ErrorContains(t, err, "disk on fire")

	invalid := staticSource{entry: "missing", stages: []domain.Stage{{ID: "a"}}}
	_, err = orderflow.New(orderflow.WithStageSource(invalid))
	var cfgErr *stagegraph.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
