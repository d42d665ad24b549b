package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeType_IsValid(t *testing.T) {
	assert.True(t, NodeTypeStart.IsValid())
	assert.True(t, NodeTypeBranch.IsValid())
	assert.True(t, NodeTypeEnd.IsValid())
	assert.False(t, NodeType("story_middle").IsValid())
	assert.False(t, NodeType("").IsValid())
}

func TestChoice_IsAvailable(t *testing.T) {
	tests := []struct {
		name         string
		requirements map[string]interface{}
		attributes   map[string]interface{}
		want         bool
	}{
		{
			name: "no requirements",
			want: true,
		},
		{
			name:         "matching requirement",
			requirements: map[string]interface{}{"has_key": true},
			attributes:   map[string]interface{}{"has_key": true},
			want:         true,
		},
		{
			name:         "mismatched value",
			requirements: map[string]interface{}{"has_key": true},
			attributes:   map[string]interface{}{"has_key": false},
			want:         false,
		},
		{
			name:         "missing attribute",
			requirements: map[string]interface{}{"has_key": true},
			attributes:   map[string]interface{}{},
			want:         false,
		},
		{
			// JSON-декодер дает float64, код игры может класть int.
			name:         "numeric cross-type match",
			requirements: map[string]interface{}{"strength": float64(3)},
			attributes:   map[string]interface{}{"strength": 3},
			want:         true,
		},
		{
			name:         "numeric mismatch",
			requirements: map[string]interface{}{"strength": float64(5)},
			attributes:   map[string]interface{}{"strength": 3},
			want:         false,
		},
		{
			name:         "string requirement",
			requirements: map[string]interface{}{"faction": "rebels"},
			attributes:   map[string]interface{}{"faction": "rebels"},
			want:         true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Choice{ID: "c1", Text: "Go", TargetNodeID: "n2", Requirements: tt.requirements}
			assert.Equal(t, tt.want, c.IsAvailable(tt.attributes))
		})
	}
}

func TestStoryNode_FindChoiceByText(t *testing.T) {
	node := StoryNode{
		ID:   "n1",
		Type: NodeTypeBranch,
		Choices: []Choice{
			{ID: "c1", Text: "Open the door", TargetNodeID: "n2"},
			{ID: "c2", Text: "  Run away  ", TargetNodeID: "n3"},
		},
	}

	require.NotNil(t, node.FindChoiceByText("Open the door"))
	assert.Equal(t, "c1", node.FindChoiceByText("  Open the door \n").ID)
	assert.Equal(t, "c2", node.FindChoiceByText("Run away").ID)

	// Регистр учитывается.
	assert.Nil(t, node.FindChoiceByText("open the door"))
	assert.Nil(t, node.FindChoiceByText("Unknown"))
}

func TestStoryNode_AvailableChoices(t *testing.T) {
	node := StoryNode{
		ID:   "n1",
		Type: NodeTypeBranch,
		Choices: []Choice{
			{ID: "c1", Text: "First", TargetNodeID: "n2"},
			{ID: "c2", Text: "Unwired"}, // без target - недоступен
			{ID: "c3", Text: "Gated", TargetNodeID: "n3", Requirements: map[string]interface{}{"has_key": true}},
			{ID: "c4", Text: "Last", TargetNodeID: "n4"},
		},
	}

	assert.Equal(t, []string{"First", "Last"}, node.AvailableChoices(nil))
	assert.Equal(t,
		[]string{"First", "Gated", "Last"},
		node.AvailableChoices(map[string]interface{}{"has_key": true}),
	)
}

func TestStoryNode_Visit(t *testing.T) {
	node := StoryNode{ID: "n1", Type: NodeTypeBranch}
	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	node.Visit(first)
	node.Visit(second)

	assert.Equal(t, 2, node.Visits)
	require.NotNil(t, node.LastVisited)
	assert.Equal(t, second, *node.LastVisited)
}
