package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Initial Load (Old is Nil)", func(t *testing.T) {
		s := NewSessionContext("sess-1", "greeting", now)
		s.Append(RoleUser, "hi", now)

		d := Diff(nil, s)
		require.NotNil(t, d)
		assert.Equal(t, "sess-1", d.SessionID)
		require.NotNil(t, d.Stage)
		assert.Equal(t, "greeting", *d.Stage)
		assert.Len(t, d.Messages, 1)
	})

	t.Run("No Changes", func(t *testing.T) {
		s := NewSessionContext("sess-1", "greeting", now)
		assert.Nil(t, Diff(s.Clone(), s))
	})

	t.Run("Stage Answer And Message Append", func(t *testing.T) {
		old := NewSessionContext("sess-1", "needs_assessment", now)
		old.Append(RoleUser, "hello", now)

		next := old.Clone()
		next.Append(RoleUser, "Vegan", now)
		next.RecordAnswer("needs_assessment", "dietary_restrictions", "Vegan")
		next.MoveTo("menu_browsing")
		next.Turn++

		d := Diff(old, next)
		require.NotNil(t, d)
		assert.Equal(t, "menu_browsing", *d.Stage)
		assert.Equal(t, 1, *d.Turn)
		assert.Equal(t, map[string]string{"needs_assessment/dietary_restrictions": "Vegan"}, d.Answers)
		require.Len(t, d.Messages, 1)
		assert.Equal(t, "Vegan", d.Messages[0].Content)
	})
}

func TestDiffJSONSerialization(t *testing.T) {
	now := time.Now()
	old := NewSessionContext("sess-1", "greeting", now)
	next := old.Clone()
	next.Turn = 1

	d := Diff(old, next)
	require.NotNil(t, d)

	bytes, err := json.Marshal(d)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(bytes), `"answers"`), "empty answers should be omitted: %s", bytes)
	assert.False(t, strings.Contains(string(bytes), `"stage"`), "unchanged stage should be omitted: %s", bytes)
}
