package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/orderflow"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

// StagesURI is the resource exposing the stage graph.
const StagesURI = "orderflow://stages"

// TurnResponse is the structured output of the conversation tools.
type TurnResponse struct {
	SessionID string             `json:"session_id" jsonschema_description:"The session the turn belongs to"`
	Result    *domain.TurnResult `json:"result" jsonschema_description:"Text, directives and affordances produced by the turn"`
}

// StageResponse describes one stage.
type StageResponse struct {
	Stage domain.Stage `json:"stage" jsonschema_description:"The stage declaration"`
	Entry bool         `json:"entry" jsonschema_description:"Whether conversations start here"`
}

// Engine defines the interface required by the MCP server to hold conversations.
type Engine interface {
	Start(ctx context.Context, sessionID string) (*domain.TurnResult, error)
	Send(ctx context.Context, sessionID, utterance string) (*domain.TurnResult, error)
	End(ctx context.Context, sessionID string) error
	Session(ctx context.Context, sessionID string) (*domain.SessionContext, error)
	Graph() *stagegraph.Graph
}

// Server wraps the Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	newID     func() string
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("orderflow-mcp", strings.TrimSpace(orderflow.Version)),
		newID:     uuid.NewString,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx
// is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		slog.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Baggage, Sentry-Trace")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	startTool := mcp.NewTool("start_session",
		mcp.WithDescription("Open a conversation at the entry stage. A session id is minted when omitted."),
		mcp.WithString("session_id", mcp.Description("Session to (re)start (optional)")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(startTool, mcp.NewStructuredToolHandler(s.handleStart))

	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send one customer utterance and get the assistant's reply."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("What the customer said")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSend))

	describeTool := mcp.NewTool("describe_stage",
		mcp.WithDescription("Describe a stage: its questions, directives and successors."),
		mcp.WithString("stage_id", mcp.Required(), mcp.Description("Stage id")),
		mcp.WithOutputSchema[StageResponse](),
	)
	s.mcpServer.AddTool(describeTool, mcp.NewStructuredToolHandler(s.handleDescribe))

	getTool := mcp.NewTool("get_session",
		mcp.WithDescription("Get the full context of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[domain.SessionContext](),
	)
	s.mcpServer.AddTool(getTool, mcp.NewStructuredToolHandler(s.handleGet))

	s.mcpServer.AddTool(mcp.NewTool("end_session",
		mcp.WithDescription("Drop a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		id, _ := args["session_id"].(string)
		if err := s.engine.End(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("end failed: %v", err)), nil
		}
		return mcp.NewToolResultText("ended"), nil
	})
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	id, _ := args["session_id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		id = s.newID()
	}
	res, err := s.engine.Start(ctx, id)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return TurnResponse{SessionID: id, Result: res}, nil
}

func (s *Server) handleSend(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	id, _ := args["session_id"].(string)
	text, _ := args["text"].(string)
	if strings.TrimSpace(id) == "" {
		return TurnResponse{}, fmt.Errorf("session_id is required")
	}

	res, err := s.engine.Send(ctx, id, text)
	if err != nil {
		slog.Warn("MCP send_message: turn rejected", "error", err, "size", len(text))
		return TurnResponse{}, fmt.Errorf("send failed: %w", err)
	}
	return TurnResponse{SessionID: id, Result: res}, nil
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.SessionContext, error) {
	id, _ := args["session_id"].(string)
	sess, err := s.engine.Session(ctx, id)
	if err != nil {
		return domain.SessionContext{}, fmt.Errorf("load failed: %w", err)
	}
	return *sess, nil
}

func (s *Server) handleDescribe(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StageResponse, error) {
	id, _ := args["stage_id"].(string)
	g := s.engine.Graph()
	st, ok := g.Stage(id)
	if !ok {
		return StageResponse{}, fmt.Errorf("%w: %s", domain.ErrStageNotFound, id)
	}
	return StageResponse{Stage: st, Entry: id == g.Entry()}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StagesURI, "Stage Graph",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := s.stagesJSON()
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      StagesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func (s *Server) stagesJSON() ([]byte, error) {
	g := s.engine.Graph()
	payload := struct {
		Entry  string         `json:"entry"`
		Stages []domain.Stage `json:"stages"`
	}{Entry: g.Entry(), Stages: g.Stages()}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stages: %w", err)
	}
	return data, nil
}
