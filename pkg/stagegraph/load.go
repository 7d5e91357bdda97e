package stagegraph

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/orderflow/pkg/domain"
)

//go:embed stages.yaml
var defaultDeclaration []byte

// Declaration is the file form of a stage graph.
type Declaration struct {
	Entry  string         `yaml:"entry"`
	Stages []domain.Stage `yaml:"stages"`
}

// Default returns the built-in ordering conversation graph.
func Default() (*Graph, error) {
	return Decode(bytes.NewReader(defaultDeclaration))
}

// MustDefault is like Default but panics if the embedded declaration is broken.
func MustDefault() *Graph {
	g, err := Default()
	if err != nil {
		panic(err)
	}
	return g
}

// LoadFile reads a YAML declaration from disk.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stage graph: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML declaration. Unknown fields are rejected.
func Decode(r io.Reader) (*Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var decl Declaration
	if err := dec.Decode(&decl); err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}
	return New(decl.Entry, decl.Stages...)
}

// Encode writes the graph as a YAML declaration.
func Encode(w io.Writer, g *Graph) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Declaration{Entry: g.Entry(), Stages: g.Stages()}); err != nil {
		return err
	}
	return enc.Close()
}
