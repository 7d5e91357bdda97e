package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/orderflow/pkg/domain"
)

// LogHooks returns lifecycle hooks that write one structured record per event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			logger.InfoContext(ctx, "turn",
				"session_id", e.SessionID,
				"turn", e.Turn,
				"stage", e.Stage,
				"rung", e.Rung,
			)
		},
		OnStageChange: func(ctx context.Context, e *domain.StageEvent) {
			logger.InfoContext(ctx, "stage_change", "session_id", e.SessionID, "from", e.From, "to", e.To)
		},
		OnSubstitution: func(ctx context.Context, e *domain.SubstitutionEvent) {
			logger.WarnContext(ctx, "stage_substitution",
				"session_id", e.SessionID,
				"from", e.From,
				"proposed", e.Proposed,
				"chosen", e.Chosen,
				"reason", e.Reason,
			)
		},
		OnFallback: func(ctx context.Context, e *domain.FallbackEvent) {
			logger.InfoContext(ctx, "fallback", "session_id", e.SessionID, "rung", e.Rung, "cause", e.Cause)
		},
		OnBackendCall: func(ctx context.Context, e *domain.BackendEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "backend_call", "session_id", e.SessionID, "duration", e.Duration, "error", e.Err)
				return
			}
			logger.DebugContext(ctx, "backend_call", "session_id", e.SessionID, "duration", e.Duration)
		},
	}
}
