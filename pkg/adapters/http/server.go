package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aretw0/orderflow"
	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/stagegraph"
)

// Engine is the part of orderflow.Engine the HTTP surface needs.
type Engine interface {
	Start(ctx context.Context, sessionID string) (*domain.TurnResult, error)
	Send(ctx context.Context, sessionID, utterance string) (*domain.TurnResult, error)
	End(ctx context.Context, sessionID string) error
	Session(ctx context.Context, sessionID string) (*domain.SessionContext, error)
	Sessions(ctx context.Context) ([]string, error)
	Graph() *stagegraph.Graph
}

// Server routes HTTP and WebSocket traffic to an Engine.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger   *slog.Logger
	metrics  http.Handler
	newID    func() string
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithIDGenerator replaces the uuid generator used for new sessions.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) {
		s.newID = fn
	}
}

// NewServer creates a server over engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  slog.Default(),
		newID:   uuid.NewString,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/stages", s.ListStages)
	r.Get("/stages/{stageID}", s.GetStage)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Post("/messages", s.PostMessage)
			r.Get("/events", s.SubscribeEvents)
			r.Get("/ws", s.ServeWebSocket)
		})
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateSessionRequest is the body of POST /sessions. The id is optional.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// SessionResponse pairs a session id with the turn it produced.
type SessionResponse struct {
	SessionID string             `json:"session_id"`
	Result    *domain.TurnResult `json:"result"`
}

// MessageRequest is the body of POST /sessions/{id}/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// StageInfo describes a stage for clients.
type StageInfo struct {
	domain.Stage
	Entry bool `json:"entry"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app":     "orderflow-http",
		"version": strings.TrimSpace(orderflow.Version),
		"entry":   s.Engine.Graph().Entry(),
		"stages":  len(s.Engine.Graph().IDs()),
	})
}

// ListStages handles the GET /stages request.
func (s *Server) ListStages(w http.ResponseWriter, r *http.Request) {
	g := s.Engine.Graph()
	stages := g.Stages()
	out := make([]StageInfo, len(stages))
	for i, st := range stages {
		out[i] = StageInfo{Stage: st, Entry: st.ID == g.Entry()}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetStage handles the GET /stages/{stageID} request.
func (s *Server) GetStage(w http.ResponseWriter, r *http.Request) {
	g := s.Engine.Graph()
	id := chi.URLParam(r, "stageID")
	st, ok := g.Stage(id)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: %s", domain.ErrStageNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, StageInfo{Stage: st, Entry: id == g.Entry()})
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Sessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// CreateSession handles the POST /sessions request.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("CreateSession: Invalid request body", "error", err)
			return
		}
	}
	id := strings.TrimSpace(body.SessionID)
	if id == "" {
		id = s.newID()
	}

	res, err := s.Engine.Start(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.publish(r.Context(), nil, id)
	writeJSON(w, http.StatusCreated, SessionResponse{SessionID: id, Result: res})
}

// GetSession handles the GET /sessions/{sessionID} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Engine.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// DeleteSession handles the DELETE /sessions/{sessionID} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostMessage handles the POST /sessions/{sessionID}/messages request.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostMessage: Invalid request body", "error", err)
		return
	}

	id := chi.URLParam(r, "sessionID")
	res, err := s.turn(r.Context(), id, body.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: id, Result: res})
}

// turn sends one utterance and broadcasts what it changed.
func (s *Server) turn(ctx context.Context, id, text string) (*domain.TurnResult, error) {
	before, err := s.Engine.Session(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	res, err := s.Engine.Send(ctx, id, text)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, before, id)
	return res, nil
}

func (s *Server) publish(ctx context.Context, before *domain.SessionContext, id string) {
	after, err := s.Engine.Session(ctx, id)
	if err != nil {
		s.logger.Debug("publish: session unavailable", "session_id", id, "error", err)
		return
	}
	diff := domain.Diff(before, after)
	if diff == nil {
		return
	}
	if bytes, err := json.Marshal(diff); err == nil {
		s.Streams.Broadcast(id, string(bytes))
	}
}

// SubscribeEvents streams session diffs as server-sent events.
// The optional watch query parameter filters by field: stage, answers,
// preferences or messages.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := chi.URLParam(r, "sessionID")
	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sessionID)

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !watched(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func watched(msg string, fields []string) bool {
	var diff domain.SessionDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range fields {
		switch strings.TrimSpace(field) {
		case "stage":
			if diff.Stage != nil {
				return true
			}
		case "answers":
			if len(diff.Answers) > 0 {
				return true
			}
		case "preferences":
			if len(diff.Preferences) > 0 {
				return true
			}
		case "messages":
			if len(diff.Messages) > 0 {
				return true
			}
		}
	}
	return false
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			// Slow client.
			slog.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// WebSocket message types.
const (
	MessageTypeText  = "message"
	MessageTypeTurn  = "turn"
	MessageTypeError = "error"
)

// WebSocketMessage is the envelope exchanged over /sessions/{id}/ws.
// Clients send {"type": "message", "data": "<utterance>"}; the server
// answers with a turn or an error.
type WebSocketMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ServeWebSocket runs a conversation over a WebSocket connection until the
// client disconnects.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	s.logger.Info("WebSocket client connected", "session_id", sessionID)

	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("WebSocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}

		if msg.Type != MessageTypeText {
			s.writeSocket(conn, MessageTypeError, fmt.Sprintf("unsupported message type %q", msg.Type))
			continue
		}
		var text string
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			s.writeSocket(conn, MessageTypeError, "data must be a string")
			continue
		}

		res, err := s.turn(ctx, sessionID, text)
		if err != nil {
			s.writeSocket(conn, MessageTypeError, err.Error())
			continue
		}
		if err := s.writeSocket(conn, MessageTypeTurn, res); err != nil {
			return
		}
	}
}

func (s *Server) writeSocket(conn *websocket.Conn, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = conn.WriteJSON(WebSocketMessage{Type: kind, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		s.logger.Warn("WebSocket write failed", "error", err)
	}
	return err
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrStageNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyUtterance), errors.Is(err, orderflow.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, orderflow.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
