package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/loam"

	"github.com/aretw0/orderflow/internal/config"
	loamstages "github.com/aretw0/orderflow/pkg/adapters/loam"
)

// ExportStages writes the configured graph into dir as a Loam repository, one
// markdown document per stage. The result can be used as stages_dir.
func ExportStages(ctx context.Context, cfg config.Config, dir string) (int, error) {
	g, err := LoadGraph(ctx, cfg)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	// No versioning: plain file generation.
	repo, err := loam.Init(dir, loam.WithVersioning(false))
	if err != nil {
		return 0, fmt.Errorf("failed to initialize loam: %w", err)
	}
	typed := loam.NewTypedRepository[loamstages.StageMetadata](repo)
	if err := loamstages.Export(ctx, typed, g); err != nil {
		return 0, err
	}
	return len(g.IDs()), nil
}
