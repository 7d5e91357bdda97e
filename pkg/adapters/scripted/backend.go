// Package scripted provides a deterministic generative backend for demos and tests.
//
// Replies come from a queue first, then from a keyword script matched against
// the latest user message, then from a fallback reply.
package scripted

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
	"github.com/aretw0/orderflow/pkg/rules"
)

//go:embed script.yaml
var defaultScript []byte

// ErrNoReply is returned when neither the queue nor the script yields a reply.
var ErrNoReply = errors.New("scripted backend has no reply")

// Entry is one scripted reply.
type Entry struct {
	// Match lists phrases; the entry fires when any of them occurs in the latest user message.
	// An empty list matches every message.
	Match []string `yaml:"match,omitempty"`
	// Stages restricts the entry to these stages. Empty means any stage.
	Stages []string      `yaml:"stages,omitempty"`
	Reply  string        `yaml:"reply,omitempty"`
	Error  string        `yaml:"error,omitempty"`
	Delay  time.Duration `yaml:"delay,omitempty"`
}

// Script is the file form of a scripted backend.
type Script struct {
	Entries  []Entry `yaml:"entries"`
	Fallback string  `yaml:"fallback,omitempty"`
}

// Backend implements ports.Backend from canned replies. Safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	queue    []Entry
	script   Script
	requests []ports.Request
}

// New creates a backend that only answers from its queue.
func New() *Backend {
	return &Backend{}
}

// NewFromScript creates a backend that answers from script.
func NewFromScript(script Script) *Backend {
	return &Backend{script: script}
}

// Default returns a backend running the built-in demo script.
func Default() (*Backend, error) {
	s, err := DecodeScript(bytes.NewReader(defaultScript))
	if err != nil {
		return nil, err
	}
	return NewFromScript(s), nil
}

// LoadScript reads a YAML script from disk.
func LoadScript(path string) (Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return Script{}, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return DecodeScript(f)
}

// DecodeScript reads a YAML script.
func DecodeScript(r io.Reader) (Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Script{}, fmt.Errorf("decode script: %w", err)
	}
	return s, nil
}

// Push queues a reply for the next call.
func (b *Backend) Push(reply string) *Backend {
	return b.enqueue(Entry{Reply: reply})
}

// PushError queues a failure for the next call.
func (b *Backend) PushError(msg string) *Backend {
	return b.enqueue(Entry{Error: msg})
}

// PushDelayed queues a reply that is only returned after d, or ctx expiry.
func (b *Backend) PushDelayed(reply string, d time.Duration) *Backend {
	return b.enqueue(Entry{Reply: reply, Delay: d})
}

// Requests returns every request received so far.
func (b *Backend) Requests() []ports.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ports.Request(nil), b.requests...)
}

// Calls returns how many times Generate was called.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Generate answers one request.
func (b *Backend) Generate(ctx context.Context, req ports.Request) (string, error) {
	entry, ok := b.next(req)
	if !ok {
		return "", ErrNoReply
	}

	if entry.Delay > 0 {
		timer := time.NewTimer(entry.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if entry.Error != "" {
		return "", errors.New(entry.Error)
	}
	return entry.Reply, nil
}

func (b *Backend) enqueue(e Entry) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, e)
	return b
}

func (b *Backend) next(req ports.Request) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)

	if len(b.queue) > 0 {
		e := b.queue[0]
		b.queue = b.queue[1:]
		return e, true
	}

	utterance := lastUserMessage(req.Messages)
	for _, e := range b.script.Entries {
		if !inStages(e.Stages, req.Stage) {
			continue
		}
		if len(e.Match) == 0 || (rules.KeywordTable{"m": e.Match}).Match("m", utterance) {
			return e, true
		}
	}
	if b.script.Fallback != "" {
		return Entry{Reply: b.script.Fallback}, true
	}
	return Entry{}, false
}

func inStages(stages []string, stage string) bool {
	if len(stages) == 0 {
		return true
	}
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}

func lastUserMessage(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
