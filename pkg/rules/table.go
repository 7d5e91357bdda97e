package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/orderflow/pkg/domain"
)

//go:embed rules.yaml
var defaultTable []byte

// Table is the data behind a rule engine: keyword sets, rules and the
// stage-derivation policy.
type Table struct {
	Keywords   KeywordTable  `yaml:"keywords"`
	Rules      []domain.Rule `yaml:"rules"`
	Derivation Policy        `yaml:"derivation"`
}

// Policy configures the fixed decision order of DeriveStage.
type Policy struct {
	Help     Step               `yaml:"help"`
	Transact Step               `yaml:"transact"`
	Routes   map[string][]Route `yaml:"routes"`
}

// Step is one phase of the decision order: when Tag matches, the first
// legal entry of Targets wins.
type Step struct {
	Tag     string   `yaml:"tag"`
	Targets []string `yaml:"targets"`
	SkipIn  []string `yaml:"skip_in,omitempty"`
}

// Route is a stage-specific keyword route.
type Route struct {
	Tag    string `yaml:"tag"`
	Target string `yaml:"target"`
}

func (s Step) skipped(stageID string) bool {
	for _, id := range s.SkipIn {
		if id == stageID {
			return true
		}
	}
	return false
}

// DefaultTable returns the built-in ordering rule table.
func DefaultTable() (Table, error) {
	return DecodeTable(bytes.NewReader(defaultTable))
}

// LoadTable reads a YAML rule table from disk.
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open rule table: %w", err)
	}
	defer f.Close()
	return DecodeTable(f)
}

// DecodeTable reads a YAML rule table.
func DecodeTable(r io.Reader) (Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var t Table
	if err := dec.Decode(&t); err != nil {
		return Table{}, fmt.Errorf("decode rule table: %w", err)
	}
	return t, nil
}
