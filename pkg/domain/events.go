package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTurnStart    EventType = "turn_start"
	EventTurnEnd      EventType = "turn_end"
	EventStageChange  EventType = "stage_change"
	EventSubstitution EventType = "stage_substitution"
	EventFallback     EventType = "fallback"
	EventBackendCall  EventType = "backend_call"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// TurnEvent marks the start or end of a turn.
type TurnEvent struct {
	EventBase
	Turn   int         `json:"turn"`
	Stage  string      `json:"stage"`
	Rung   string      `json:"rung,omitempty"`
	Result *TurnResult `json:"-"`
}

// StageEvent represents a stage change.
type StageEvent struct {
	EventBase
	From string `json:"from"`
	To   string `json:"to"`
}

// SubstitutionEvent reports an illegal or missing stage proposal that was corrected.
type SubstitutionEvent struct {
	EventBase
	Substitution
}

// FallbackEvent reports which ladder rung produced the reply, and why earlier rungs failed.
type FallbackEvent struct {
	EventBase
	Rung  string `json:"rung"`
	Cause string `json:"cause,omitempty"`
}

// BackendEvent reports one backend invocation.
type BackendEvent struct {
	EventBase
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTurnStart    func(context.Context, *TurnEvent)
	OnTurnEnd      func(context.Context, *TurnEvent)
	OnStageChange  func(context.Context, *StageEvent)
	OnSubstitution func(context.Context, *SubstitutionEvent)
	OnFallback     func(context.Context, *FallbackEvent)
	OnBackendCall  func(context.Context, *BackendEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTurnStart:    chain(h.OnTurnStart, other.OnTurnStart),
		OnTurnEnd:      chain(h.OnTurnEnd, other.OnTurnEnd),
		OnStageChange:  chain(h.OnStageChange, other.OnStageChange),
		OnSubstitution: chain(h.OnSubstitution, other.OnSubstitution),
		OnFallback:     chain(h.OnFallback, other.OnFallback),
		OnBackendCall:  chain(h.OnBackendCall, other.OnBackendCall),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
