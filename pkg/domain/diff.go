package domain

// SessionDiff represents the changes a turn made to a session.
// It is designed to be serialized to JSON for partial updates on the client.
type SessionDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Stage *string `json:"stage,omitempty"`
	Turn  *int    `json:"turn,omitempty"`

	// Answers contains only added or changed answers.
	Answers map[string]string `json:"answers,omitempty"`

	// Preferences contains only added or changed preferences.
	Preferences map[string]string `json:"preferences,omitempty"`

	// Messages holds the messages appended since the old snapshot.
	// The log is append-only within a session.
	Messages []Message `json:"messages,omitempty"`
}

// Diff calculates the difference between two snapshots of a session.
// If oldCtx is nil, it returns a diff representing the entire newCtx (initial load).
// It returns nil when nothing changed.
func Diff(oldCtx, newCtx *SessionContext) *SessionDiff {
	if newCtx == nil {
		return nil
	}

	diff := &SessionDiff{SessionID: newCtx.ID}

	if oldCtx == nil || oldCtx.Stage != newCtx.Stage {
		stage := newCtx.Stage
		diff.Stage = &stage
	}
	if oldCtx == nil || oldCtx.Turn != newCtx.Turn {
		turn := newCtx.Turn
		diff.Turn = &turn
	}

	var oldAnswers, oldPrefs map[string]string
	oldLen := 0
	if oldCtx != nil {
		oldAnswers = oldCtx.Answers
		oldPrefs = oldCtx.Preferences
		oldLen = len(oldCtx.Messages)
	}
	diff.Answers = diffStrings(oldAnswers, newCtx.Answers)
	diff.Preferences = diffStrings(oldPrefs, newCtx.Preferences)

	if len(newCtx.Messages) > oldLen {
		diff.Messages = append([]Message(nil), newCtx.Messages[oldLen:]...)
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffStrings(old, new map[string]string) map[string]string {
	delta := make(map[string]string)
	for k, v := range new {
		if prev, ok := old[k]; !ok || prev != v {
			delta[k] = v
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.Stage == nil &&
		d.Turn == nil &&
		len(d.Answers) == 0 &&
		len(d.Preferences) == 0 &&
		len(d.Messages) == 0
}
