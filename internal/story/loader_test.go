package story

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

const validStoryJSON = `{
  "version": "1.0",
  "title": "The Locked House",
  "author": "tester",
  "start_node_id": "start",
  "nodes": [
    {
      "id": "start",
      "type": "story_start",
      "title": "Front Door",
      "content": "You stand before a locked house.",
      "choices": [
        {"id": "c1", "text": "Open the door", "target_node_id": "hallway"},
        {"id": "c2", "text": "Walk away", "target_node_id": "ending_leave"}
      ]
    },
    {
      "id": "hallway",
      "type": "story_branch",
      "title": "Hallway",
      "content": "A dusty hallway stretches ahead.",
      "choices": [
        {"id": "c3", "text": "Go back", "target_node_id": "start"},
        {"id": "c4", "text": "Search the cellar", "target_node_id": ""}
      ]
    },
    {
      "id": "ending_leave",
      "type": "story_end",
      "title": "You Leave",
      "content": "Some doors are better left closed.",
      "choices": []
    }
  ]
}`

func writeStory(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadStory_Valid(t *testing.T) {
	path := writeStory(t, "locked_house.json", validStoryJSON)

	graph, err := LoadStory(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "locked_house", graph.StoryID)
	assert.Equal(t, "The Locked House", graph.Title)
	assert.Equal(t, "start", graph.StartNodeID)
	assert.Len(t, graph.Nodes, 3)

	start, ok := graph.StartNode()
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeStart, start.Type)

	// Неподключенный выбор легален при загрузке.
	hallway, _ := graph.Node("hallway")
	unwired := hallway.FindChoiceByID("c4")
	require.NotNil(t, unwired)
	assert.False(t, unwired.IsWired())
}

func TestLoadStory_MissingFile(t *testing.T) {
	_, err := LoadStory(filepath.Join(t.TempDir(), "nope.json"), zap.NewNop())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLoadStory_InvalidJSON(t *testing.T) {
	path := writeStory(t, "broken.json", "{not json")
	_, err := LoadStory(path, zap.NewNop())
	assert.ErrorIs(t, err, models.ErrMalformedGraph)
}

func TestLoadStory_DuplicateNodeID(t *testing.T) {
	path := writeStory(t, "dup.json", `{
      "start_node_id": "start",
      "nodes": [
        {"id": "start", "type": "story_start", "title": "A", "choices": []},
        {"id": "start", "type": "story_end", "title": "B", "choices": []}
      ]
    }`)
	_, err := LoadStory(path, zap.NewNop())
	assert.ErrorIs(t, err, models.ErrMalformedGraph)
}

func TestValidateGraph(t *testing.T) {
	base := func() *models.StoryGraph {
		return &models.StoryGraph{
			StoryID:     "t",
			StartNodeID: "start",
			Nodes: map[string]*models.StoryNode{
				"start": {ID: "start", Type: models.NodeTypeStart, Title: "Start", Choices: []models.Choice{
					{ID: "c1", Text: "Finish", TargetNodeID: "end"},
				}},
				"end": {ID: "end", Type: models.NodeTypeEnd, Title: "End"},
			},
		}
	}

	t.Run("valid graph passes", func(t *testing.T) {
		assert.NoError(t, ValidateGraph(base()))
	})

	t.Run("cycles are legal", func(t *testing.T) {
		g := base()
		g.Nodes["loop"] = &models.StoryNode{ID: "loop", Type: models.NodeTypeBranch, Title: "Loop", Choices: []models.Choice{
			{ID: "c1", Text: "Again", TargetNodeID: "loop"},
		}}
		assert.NoError(t, ValidateGraph(g))
	})

	t.Run("empty start_node_id", func(t *testing.T) {
		g := base()
		g.StartNodeID = ""
		assert.ErrorIs(t, ValidateGraph(g), models.ErrNoStartNode)
	})

	t.Run("start node missing", func(t *testing.T) {
		g := base()
		g.StartNodeID = "ghost"
		assert.ErrorIs(t, ValidateGraph(g), models.ErrNoStartNode)
	})

	t.Run("start node wrong type", func(t *testing.T) {
		g := base()
		g.Nodes["start"].Type = models.NodeTypeBranch
		assert.ErrorIs(t, ValidateGraph(g), models.ErrNoStartNode)
	})

	t.Run("two start nodes", func(t *testing.T) {
		g := base()
		g.Nodes["start2"] = &models.StoryNode{ID: "start2", Type: models.NodeTypeStart, Title: "Other"}
		assert.ErrorIs(t, ValidateGraph(g), models.ErrNoStartNode)
	})

	t.Run("unknown node type", func(t *testing.T) {
		g := base()
		g.Nodes["end"].Type = "story_middle"
		assert.ErrorIs(t, ValidateGraph(g), models.ErrMalformedGraph)
	})

	t.Run("end node with choices", func(t *testing.T) {
		g := base()
		g.Nodes["end"].Choices = []models.Choice{{ID: "c9", Text: "Escape", TargetNodeID: "start"}}
		assert.ErrorIs(t, ValidateGraph(g), models.ErrMalformedGraph)
	})

	t.Run("empty choice text", func(t *testing.T) {
		g := base()
		g.Nodes["start"].Choices[0].Text = "   "
		assert.ErrorIs(t, ValidateGraph(g), models.ErrMalformedGraph)
	})

	t.Run("duplicate choice text after trim", func(t *testing.T) {
		g := base()
		g.Nodes["start"].Choices = append(g.Nodes["start"].Choices,
			models.Choice{ID: "c2", Text: "  Finish ", TargetNodeID: "end"})
		assert.ErrorIs(t, ValidateGraph(g), models.ErrMalformedGraph)
	})

	t.Run("dangling wired choice", func(t *testing.T) {
		g := base()
		g.Nodes["start"].Choices[0].TargetNodeID = "ghost"
		assert.ErrorIs(t, ValidateGraph(g), models.ErrDanglingReference)
	})

	t.Run("unwired choice is legal", func(t *testing.T) {
		g := base()
		g.Nodes["start"].Choices = append(g.Nodes["start"].Choices,
			models.Choice{ID: "c2", Text: "To be continued"})
		assert.NoError(t, ValidateGraph(g))
	})
}

func TestLibrary_LoadAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "locked_house.json"), []byte(validStoryJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	lib := NewLibrary(dir, zap.NewNop())
	require.NoError(t, lib.LoadAll())

	assert.Equal(t, []string{"locked_house"}, lib.StoryIDs())

	graph, err := lib.Graph("locked_house")
	require.NoError(t, err)
	assert.Equal(t, "The Locked House", graph.Title)

	_, err = lib.Graph("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLibrary_LoadAllFailsOnBrokenStory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"start_node_id": "x", "nodes": []}`), 0o644))

	lib := NewLibrary(dir, zap.NewNop())
	assert.Error(t, lib.LoadAll())
}
