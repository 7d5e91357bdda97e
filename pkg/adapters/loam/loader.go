// Package loam reads a stage graph from a Loam repository: one markdown
// document per stage, front matter for the declaration and the body for the
// stage description.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

// Source adapts a Loam repository to ports.StageSource.
type Source struct {
	Repo *loam.TypedRepository[StageMetadata]
}

// New creates a source over an initialized repository.
func New(repo *loam.TypedRepository[StageMetadata]) *Source {
	return &Source{Repo: repo}
}

// Open initializes a read-only Loam repository at dir.
func Open(dir string) (*Source, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[StageMetadata](repo)), nil
}

// LoadStages implements ports.StageSource.
// Stages are returned in id order with the entry stage first. Exactly one
// document must set entry: true.
func (s *Source) LoadStages(ctx context.Context) (string, []domain.Stage, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string, len(docs))
	var (
		entry   string
		entries []string
		stages  []domain.Stage
	)
	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existing, ok := seen[id]; ok {
			return "", nil, fmt.Errorf("collision detected: stage %q is defined in both %q and %q", id, existing, doc.ID)
		}
		seen[id] = doc.ID

		if doc.Data.Entry {
			entry = id
			entries = append(entries, id)
		}
		stages = append(stages, doc.Data.stage(id, strings.TrimSpace(doc.Content)))
	}

	switch len(entries) {
	case 0:
		return "", nil, fmt.Errorf("no stage is marked as entry")
	case 1:
	default:
		sort.Strings(entries)
		return "", nil, fmt.Errorf("several stages are marked as entry: %s", strings.Join(entries, ", "))
	}

	sort.SliceStable(stages, func(i, j int) bool {
		if (stages[i].ID == entry) != (stages[j].ID == entry) {
			return stages[i].ID == entry
		}
		return stages[i].ID < stages[j].ID
	})
	return entry, stages, nil
}

// Load reads and validates the graph.
func (s *Source) Load(ctx context.Context) (*stagegraph.Graph, error) {
	entry, stages, err := s.LoadStages(ctx)
	if err != nil {
		return nil, err
	}
	return stagegraph.New(entry, stages...)
}

// Watch reports the id of every changed stage document.
func (s *Source) Watch(ctx context.Context) (<-chan string, error) {
	events, err := s.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Export writes every stage of g as a document of repo.
func Export(ctx context.Context, repo *loam.TypedRepository[StageMetadata], g *stagegraph.Graph) error {
	for _, st := range g.Stages() {
		err := repo.Save(ctx, &loam.DocumentModel[StageMetadata]{
			ID:      st.ID,
			Content: st.Description,
			Data:    metadataOf(st, st.ID == g.Entry()),
		})
		if err != nil {
			return fmt.Errorf("save stage %s: %w", st.ID, err)
		}
	}
	return nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
