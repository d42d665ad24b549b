package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

func statsTestGraph() *models.StoryGraph {
	return &models.StoryGraph{
		StoryID:     "demo_story",
		StartNodeID: "start",
		Nodes: map[string]*models.StoryNode{
			"start":   {ID: "start", Type: models.NodeTypeStart, Title: "Start"},
			"hallway": {ID: "hallway", Type: models.NodeTypeEnd, Title: "Hallway"},
		},
	}
}

func TestFileVisitStatsRepository_SaveAndApply(t *testing.T) {
	repo := NewFileVisitStatsRepository(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	graph := statsTestGraph()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	graph.Nodes["start"].Visit(now)
	graph.Nodes["start"].Visit(now.Add(time.Minute))
	require.NoError(t, repo.Save(ctx, graph))

	// Свежая копия графа без счетчиков.
	fresh := statsTestGraph()
	require.NoError(t, repo.Apply(ctx, fresh))

	assert.Equal(t, 2, fresh.Nodes["start"].Visits)
	require.NotNil(t, fresh.Nodes["start"].LastVisited)
	assert.Equal(t, now.Add(time.Minute), fresh.Nodes["start"].LastVisited.UTC())
	assert.Equal(t, 0, fresh.Nodes["hallway"].Visits)
}

func TestFileVisitStatsRepository_ApplyWithoutSavedStats(t *testing.T) {
	repo := NewFileVisitStatsRepository(t.TempDir(), zap.NewNop())

	graph := statsTestGraph()
	require.NoError(t, repo.Apply(context.Background(), graph))
	assert.Equal(t, 0, graph.Nodes["start"].Visits)
}

func TestFileVisitStatsRepository_UnreadableStatsDiscarded(t *testing.T) {
	dataDir := t.TempDir()
	repo := NewFileVisitStatsRepository(dataDir, zap.NewNop())

	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "stats"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "stats", "demo_story.json"), []byte("???"), 0o644))

	graph := statsTestGraph()
	require.NoError(t, repo.Apply(context.Background(), graph))
	assert.Equal(t, 0, graph.Nodes["start"].Visits)
}
