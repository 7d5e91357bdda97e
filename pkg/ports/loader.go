package ports

import (
	"context"

	"github.com/aretw0/orderflow/pkg/domain"
)

// StageSource loads stage declarations from an external medium.
// The result is validated by the stage graph; a source does not check edges.
type StageSource interface {
	LoadStages(ctx context.Context) (entry string, stages []domain.Stage, err error)
}
