package scripted

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/ports"
)

func request(stage, utterance string) ports.Request {
	return ports.Request{
		Stage:    stage,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: utterance}},
	}
}

func TestBackend_QueueFirst(t *testing.T) {
	b := New().Push("one").PushError("down")
	ctx := context.Background()

	got, err := b.Generate(ctx, request("greeting", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	_, err = b.Generate(ctx, request("greeting", "hi"))
	assert.EqualError(t, err, "down")

	_, err = b.Generate(ctx, request("greeting", "hi"))
	assert.ErrorIs(t, err, ErrNoReply)
	assert.Equal(t, 3, b.Calls())
}

func TestBackend_DelayHonorsContext(t *testing.T) {
	b := New().PushDelayed("late", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Generate(ctx, request("greeting", "hi"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackend_Script(t *testing.T) {
	b := NewFromScript(Script{
		Entries: []Entry{
			{Match: []string{"menu"}, Stages: []string{"greeting"}, Reply: "greeting menu"},
			{Match: []string{"menu"}, Reply: "any menu"},
		},
		Fallback: "fallback",
	})
	ctx := context.Background()

	got, _ := b.Generate(ctx, request("greeting", "Show the MENU"))
	assert.Equal(t, "greeting menu", got)

	got, _ = b.Generate(ctx, request("support", "menu please"))
	assert.Equal(t, "any menu", got)

	got, _ = b.Generate(ctx, request("support", "menus"))
	assert.Equal(t, "fallback", got)

	reqs := b.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "support", reqs[2].Stage)
}

func TestDefault_Loads(t *testing.T) {
	b, err := Default()
	require.NoError(t, err)
	assert.NotEmpty(t, b.script.Entries)
	assert.NotEmpty(t, b.script.Fallback)

	var slow *Entry
	for i := range b.script.Entries {
		if b.script.Entries[i].Delay > 0 {
			slow = &b.script.Entries[i]
		}
	}
	require.NotNil(t, slow)
	assert.Equal(t, time.Minute, slow.Delay)
}
