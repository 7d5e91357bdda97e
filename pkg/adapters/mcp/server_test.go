package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/orderflow"
	"github.com/aretw0/orderflow/pkg/domain"
)

func newServer(t *testing.T) (*Server, *orderflow.Engine) {
	t.Helper()
	eng, err := orderflow.New()
	require.NoError(t, err)
	s := NewServer(eng)
	s.newID = func() string { return "minted" }
	return s, eng
}

func TestServer_Conversation(t *testing.T) {
	s, _ := newServer(t)
	ctx := context.Background()
	var req mcp.CallToolRequest

	started, err := s.handleStart(ctx, req, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "minted", started.SessionID)
	assert.Equal(t, "greeting", started.Result.Stage)

	turn, err := s.handleSend(ctx, req, map[string]interface{}{"session_id": "minted", "text": "Place an order"})
	require.NoError(t, err)
	assert.Equal(t, "needs_assessment", turn.Result.Stage)

	sess, err := s.handleGet(ctx, req, map[string]interface{}{"session_id": "minted"})
	require.NoError(t, err)
	assert.Equal(t, "Place an order", sess.Answers[domain.AnswerKey("greeting", "visit_purpose")])
}

func TestServer_SendErrors(t *testing.T) {
	s, _ := newServer(t)
	ctx := context.Background()
	var req mcp.CallToolRequest

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr error
	}{
		{"missing session", map[string]interface{}{"text": "hi"}, nil},
		{"empty text", map[string]interface{}{"session_id": "s1", "text": " "}, domain.ErrEmptyUtterance},
		{"invalid utf8", map[string]interface{}{"session_id": "s1", "text": "\xff"}, orderflow.ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSend(ctx, req, tt.args)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	_, err := s.handleGet(ctx, req, map[string]interface{}{"session_id": "s1"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestServer_DescribeStage(t *testing.T) {
	s, _ := newServer(t)
	ctx := context.Background()
	var req mcp.CallToolRequest

	got, err := s.handleDescribe(ctx, req, map[string]interface{}{"stage_id": "greeting"})
	require.NoError(t, err)
	assert.True(t, got.Entry)
	assert.NotEmpty(t, got.Stage.Questions)

	got, err = s.handleDescribe(ctx, req, map[string]interface{}{"stage_id": "support"})
	require.NoError(t, err)
	assert.False(t, got.Entry)

	_, err = s.handleDescribe(ctx, req, map[string]interface{}{"stage_id": "nowhere"})
	assert.ErrorIs(t, err, domain.ErrStageNotFound)
}

func TestServer_StagesResource(t *testing.T) {
	s, eng := newServer(t)

	data, err := s.stagesJSON()
	require.NoError(t, err)

	var payload struct {
		Entry  string         `json:"entry"`
		Stages []domain.Stage `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "greeting", payload.Entry)
	assert.Len(t, payload.Stages, len(eng.Graph().IDs()))
}
