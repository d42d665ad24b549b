package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("demo", "start", now)

	assert.NotEqual(t, [16]byte{}, [16]byte(s.ID))
	assert.Equal(t, "demo", s.StoryID)
	assert.Equal(t, "start", s.CurrentNodeID)
	assert.Empty(t, s.History)
	require.Len(t, s.Timeline, 1)
	assert.Equal(t, "Game Start", s.Timeline[0].Title)
	assert.Equal(t, now, s.StartedAt)
	assert.Equal(t, now, s.LastActivityAt)
}

func TestSession_RecordChoice(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("demo", "start", now)

	first := Choice{ID: "c1", Text: "Go north", TargetNodeID: "n2"}
	second := Choice{ID: "c2", Text: "Enter the cave", TargetNodeID: "n3"}
	s.RecordChoice(&first, now.Add(time.Minute))
	s.RecordChoice(&second, now.Add(2*time.Minute))

	require.Len(t, s.History, 2)
	assert.Equal(t, "c1", s.History[0].ChoiceID)
	assert.Equal(t, "n3", s.History[1].TargetNodeID)

	// Нумерация таймлайна идет по длине истории.
	require.Len(t, s.Timeline, 3)
	assert.Equal(t, "Choice 1", s.Timeline[1].Title)
	assert.Equal(t, "Go north", s.Timeline[1].Description)
	assert.Equal(t, "Choice 2", s.Timeline[2].Title)

	assert.Equal(t, now.Add(2*time.Minute), s.LastActivityAt)
}
