package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

// nodeVisitStats - запись статистики одного узла в файле-сателлите.
type nodeVisitStats struct {
	Visits      int        `json:"visits"`
	LastVisited *time.Time `json:"last_visited,omitempty"`
}

// fileVisitStatsRepository хранит счетчики посещений в
// <dataDir>/stats/<storyID>.json. Файл-сателлит держит мутирующую
// часть отдельно, авторский файл истории остается неизменным.
type fileVisitStatsRepository struct {
	dataDir string
	logger  *zap.Logger
}

// NewFileVisitStatsRepository создает файловый репозиторий статистики.
func NewFileVisitStatsRepository(dataDir string, logger *zap.Logger) VisitStatsRepository {
	return &fileVisitStatsRepository{
		dataDir: dataDir,
		logger:  logger.Named("VisitStatsRepo"),
	}
}

func (r *fileVisitStatsRepository) statsPath(storyID string) string {
	return filepath.Join(r.dataDir, "stats", storyID+".json")
}

// Save снимает счетчики со всех узлов графа и атомарно перезаписывает
// файл статистики.
func (r *fileVisitStatsRepository) Save(ctx context.Context, graph *models.StoryGraph) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stats := make(map[string]nodeVisitStats, len(graph.Nodes))
	for id, node := range graph.Nodes {
		if node.Visits == 0 {
			continue
		}
		stats[id] = nodeVisitStats{Visits: node.Visits, LastVisited: node.LastVisited}
	}

	dir := filepath.Dir(r.statsPath(graph.StoryID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating stats directory: %w", err)
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding visit stats for %q: %w", graph.StoryID, err)
	}

	tmp, err := os.CreateTemp(dir, graph.StoryID+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp stats file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp stats file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp stats file: %w", err)
	}
	if err := os.Rename(tmpName, r.statsPath(graph.StoryID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing stats file: %w", err)
	}
	return nil
}

// Apply накладывает сохраненные счетчики на узлы графа.
// Записи для исчезнувших узлов молча пропускаются.
func (r *fileVisitStatsRepository) Apply(ctx context.Context, graph *models.StoryGraph) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(r.statsPath(graph.StoryID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading visit stats for %q: %w", graph.StoryID, err)
	}

	var stats map[string]nodeVisitStats
	if err := json.Unmarshal(data, &stats); err != nil {
		// Битая статистика не должна блокировать игру, начинаем счет
		// заново.
		r.logger.Warn("Discarding unreadable visit stats",
			zap.String("storyID", graph.StoryID),
			zap.Error(err),
		)
		return nil
	}

	for id, s := range stats {
		if node, ok := graph.Node(id); ok {
			node.Visits = s.Visits
			node.LastVisited = s.LastVisited
		}
	}
	return nil
}
