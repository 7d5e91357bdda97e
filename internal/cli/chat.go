package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/orderflow"
	"github.com/aretw0/orderflow/internal/presentation/graph"
	"github.com/aretw0/orderflow/internal/presentation/tui"
	"github.com/aretw0/orderflow/pkg/domain"
)

// ChatOptions configures a REPL conversation.
type ChatOptions struct {
	SessionID string
	In        io.Reader
	Out       io.Writer

	// JSON switches to NDJSON: every input line is an utterance (plain or
	// {"text": "..."}) and every output line is a turn result.
	JSON bool

	// Render turns markdown into terminal output. Nil prints it raw.
	Render func(string) (string, error)
	Names  tui.ItemNamer
}

// chat commands, matched case-insensitively on the whole line.
var quitCommands = map[string]bool{"q": true, "quit": true, "exit": true, "/quit": true, "/exit": true}

// Chat holds one conversation on the engine until the input ends, the user
// quits, the conversation reaches a final stage or ctx is cancelled.
func Chat(ctx context.Context, eng *orderflow.Engine, opts ChatOptions) error {
	c := &chat{eng: eng, opts: opts}

	res, err := eng.Start(ctx, opts.SessionID)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if err := c.show(res); err != nil {
		return err
	}

	lines := readLines(ctx, opts.In)
	for {
		c.prompt()

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-lines:
			if !ok {
				return io.EOF
			}
			if in.err != nil {
				return in.err
			}
			line = strings.TrimSpace(in.text)
		}

		if line == "" {
			continue
		}
		if quitCommands[strings.ToLower(line)] {
			c.system("Session '%s' closed.", opts.SessionID)
			return nil
		}
		if handled, err := c.command(ctx, line); handled {
			if err != nil {
				return err
			}
			continue
		}

		utterance := c.utterance(line)
		res, err := eng.Send(ctx, opts.SessionID, utterance)
		switch {
		case errors.Is(err, domain.ErrEmptyUtterance),
			errors.Is(err, orderflow.ErrInputTooLarge),
			errors.Is(err, orderflow.ErrInvalidUTF8):
			c.system("Input rejected: %v", err)
			continue
		case err != nil:
			return err
		}

		if err := c.show(res); err != nil {
			return err
		}
		if st, ok := eng.Graph().Stage(res.Stage); ok && st.IsFinal() {
			c.system("Finished at '%s' stage.", res.Stage)
			return nil
		}
	}
}

type chat struct {
	eng  *orderflow.Engine
	opts ChatOptions
	last *domain.TurnResult
}

func (c *chat) prompt() {
	if !c.opts.JSON {
		fmt.Fprint(c.opts.Out, "> ")
	}
}

func (c *chat) system(format string, args ...any) {
	if !c.opts.JSON {
		printSystemMessage(c.opts.Out, format, args...)
	}
}

// utterance resolves numbered answers and unwraps NDJSON input.
func (c *chat) utterance(line string) string {
	if c.opts.JSON && strings.HasPrefix(line, "{") {
		var msg struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err == nil {
			return msg.Text
		}
	}
	return tui.ResolveChoice(c.last, line)
}

func (c *chat) show(res *domain.TurnResult) error {
	c.last = res
	if c.opts.JSON {
		return json.NewEncoder(c.opts.Out).Encode(res)
	}

	md := tui.FormatTurn(res, c.opts.Names)
	if c.opts.Render != nil {
		rendered, err := c.opts.Render(md)
		if err == nil {
			md = rendered
		}
	}
	_, err := fmt.Fprint(c.opts.Out, md)
	return err
}

// command runs slash commands. It reports whether line was one.
func (c *chat) command(ctx context.Context, line string) (bool, error) {
	if c.opts.JSON || !strings.HasPrefix(line, "/") {
		return false, nil
	}
	switch strings.ToLower(line) {
	case "/stage":
		s, err := c.eng.Session(ctx, c.opts.SessionID)
		if err != nil {
			return true, err
		}
		c.system("Stage '%s', turn %d.", s.Stage, s.Turn)
	case "/session":
		s, err := c.eng.Session(ctx, c.opts.SessionID)
		if err != nil {
			return true, err
		}
		enc := json.NewEncoder(c.opts.Out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(s)
	case "/graph":
		s, err := c.eng.Session(ctx, c.opts.SessionID)
		if err != nil {
			return true, err
		}
		fmt.Fprint(c.opts.Out, graph.GenerateMermaid(c.eng.Graph(), c.eng.Rules().Rules(), graph.OverlayFor(s)))
	case "/restart":
		res, err := c.eng.Start(ctx, c.opts.SessionID)
		if err != nil {
			return true, err
		}
		c.system("Session '%s' restarted.", c.opts.SessionID)
		return true, c.show(res)
	case "/help":
		c.system("Commands: /stage, /session, /graph, /restart, /quit. Answer questions by number or in words.")
	default:
		return false, nil
	}
	return true, nil
}

type inputLine struct {
	text string
	err  error
}

// readLines pumps r into a channel so a blocked read never holds up
// cancellation.
func readLines(ctx context.Context, r io.Reader) <-chan inputLine {
	ch := make(chan inputLine)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case ch <- inputLine{text: scanner.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case ch <- inputLine{err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}
