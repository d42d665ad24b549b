package story

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

// Library хранит все загруженные графы историй и отдает их по StoryID.
// Потокобезопасна: графы читаются обработчиками запросов и дополняются
// генератором.
type Library struct {
	dir    string
	logger *zap.Logger

	mu     sync.RWMutex
	graphs map[string]*models.StoryGraph
}

// NewLibrary создает библиотеку историй над каталогом с JSON-файлами.
func NewLibrary(dir string, logger *zap.Logger) *Library {
	return &Library{
		dir:    dir,
		logger: logger.Named("StoryLibrary"),
		graphs: make(map[string]*models.StoryGraph),
	}
}

// LoadAll загружает все *.json истории из каталога библиотеки.
// Любой невалидный файл фатален: сервер не стартует с битым графом.
func (l *Library) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("reading story directory %q: %w", l.dir, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		graph, err := LoadStory(path, l.logger)
		if err != nil {
			return fmt.Errorf("loading story %q: %w", entry.Name(), err)
		}
		l.graphs[graph.StoryID] = graph
	}

	l.logger.Info("Story library initialized", zap.Int("stories", len(l.graphs)))
	return nil
}

// Add регистрирует граф в библиотеке после повторной валидации.
// Используется тестами и генератором демо-историй.
func (l *Library) Add(graph *models.StoryGraph) error {
	if err := ValidateGraph(graph); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.graphs[graph.StoryID] = graph
	return nil
}

// Graph возвращает граф истории по StoryID.
func (l *Library) Graph(storyID string) (*models.StoryGraph, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	graph, ok := l.graphs[storyID]
	if !ok {
		return nil, fmt.Errorf("story %q: %w", storyID, models.ErrNotFound)
	}
	return graph, nil
}

// StoryIDs возвращает отсортированный список ID загруженных историй.
func (l *Library) StoryIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.graphs))
	for id := range l.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
