package memory

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/orderflow/pkg/ports"
	"github.com/aretw0/orderflow/pkg/rules"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// PreferenceDiet is the preference key the catalog filters on.
const PreferenceDiet = "dietary_restrictions"

// dietTags maps a dietary answer to the tags that satisfy it.
var dietTags = map[string][]string{
	"vegetarian":  {"vegetarian", "vegan"},
	"vegan":       {"vegan"},
	"gluten-free": {"gluten-free"},
	"halal":       {"halal"},
}

// Catalog is an in-memory item catalog and knowledge base.
// It is read-only after construction and safe for concurrent use.
type Catalog struct {
	Items     []ports.Item    `yaml:"items"`
	Knowledge []ports.Snippet `yaml:"knowledge"`
}

// DefaultCatalog returns the built-in demo catalog.
func DefaultCatalog() (*Catalog, error) {
	return DecodeCatalog(bytes.NewReader(defaultCatalog))
}

// LoadCatalog reads a YAML catalog from disk.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return DecodeCatalog(f)
}

// DecodeCatalog reads a YAML catalog.
func DecodeCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if it.ID == "" {
			return nil, fmt.Errorf("decode catalog: item %q has no id", it.Name)
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("decode catalog: duplicate item %q", it.ID)
		}
		seen[it.ID] = true
	}
	return &c, nil
}

// Item looks up an item by id.
func (c *Catalog) Item(id string) (ports.Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return ports.Item{}, false
}

// Search returns items matching the keywords and the dietary preference,
// best keyword match first. Empty keywords match every item.
func (c *Catalog) Search(ctx context.Context, q ports.ItemQuery) ([]ports.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := strings.Fields(rules.Normalize(q.Keywords))
	diet := strings.ToLower(strings.TrimSpace(q.Preferences[PreferenceDiet]))

	type scored struct {
		item  ports.Item
		score int
		order int
	}
	var hits []scored
	for i, it := range c.Items {
		if !satisfiesDiet(it, diet) {
			continue
		}
		score := 0
		if len(words) > 0 {
			text := rules.Normalize(strings.Join(append([]string{it.Name, it.Description, it.Category}, it.Tags...), " "))
			for _, w := range words {
				if strings.Contains(text, " "+w+" ") {
					score++
				}
			}
			if score == 0 {
				continue
			}
		}
		hits = append(hits, scored{item: it, score: score, order: i})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})

	out := make([]ports.Item, 0, len(hits))
	for _, h := range hits {
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		out = append(out, h.item)
	}
	return out, nil
}

// Lookup ranks knowledge snippets by the share of query words they contain.
func (c *Catalog) Lookup(ctx context.Context, query string, limit int) ([]ports.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.Fields(rules.Normalize(query))
	if len(words) == 0 {
		return nil, nil
	}

	var out []ports.Snippet
	for _, s := range c.Knowledge {
		text := rules.Normalize(s.Title + " " + s.Body)
		hits := 0
		for _, w := range words {
			if strings.Contains(text, " "+w+" ") {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		s.Score = float64(hits) / float64(len(words))
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func satisfiesDiet(it ports.Item, diet string) bool {
	accepted, ok := dietTags[diet]
	if !ok {
		return true
	}
	for _, tag := range it.Tags {
		for _, a := range accepted {
			if strings.EqualFold(tag, a) {
				return true
			}
		}
	}
	return false
}
