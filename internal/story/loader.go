package story

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

// storyFile - формат файла конфигурации истории на диске.
type storyFile struct {
	Version     string             `json:"version"`
	Title       string             `json:"title"`
	Author      string             `json:"author"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
	StartNodeID string             `json:"start_node_id"`
	Nodes       []models.StoryNode `json:"nodes"`
}

// LoadStory читает и валидирует конфигурацию истории из JSON-файла.
// Любая структурная ошибка фатальна: сломанный граф не допускается к
// игре. StoryID берется из имени файла без расширения.
func LoadStory(path string, logger *zap.Logger) (*models.StoryGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("story file %q: %w", path, models.ErrNotFound)
		}
		return nil, fmt.Errorf("reading story file %q: %w", path, err)
	}

	var sf storyFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", models.ErrMalformedGraph, path, err)
	}

	storyID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	graph := &models.StoryGraph{
		StoryID:     storyID,
		Version:     sf.Version,
		Title:       sf.Title,
		Author:      sf.Author,
		StartNodeID: sf.StartNodeID,
		Nodes:       make(map[string]*models.StoryNode, len(sf.Nodes)),
	}

	// 1. Дубликаты ID узлов ловим до сборки карты, иначе они молча
	// перезапишут друг друга.
	for i := range sf.Nodes {
		node := sf.Nodes[i]
		if node.ID == "" {
			return nil, fmt.Errorf("%w: node #%d has empty id", models.ErrMalformedGraph, i)
		}
		if _, exists := graph.Nodes[node.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate node id %q", models.ErrMalformedGraph, node.ID)
		}
		graph.Nodes[node.ID] = &node
	}

	// 2. Полная структурная валидация.
	if err := ValidateGraph(graph); err != nil {
		return nil, err
	}

	logger.Info("Story graph loaded",
		zap.String("storyID", storyID),
		zap.String("title", graph.Title),
		zap.Int("nodes", len(graph.Nodes)),
	)
	return graph, nil
}

// ValidateGraph проверяет структурные инварианты графа истории.
// Вызывается при загрузке с диска и повторно после каждого расширения
// графа генератором.
func ValidateGraph(g *models.StoryGraph) error {
	// 1. Стартовый узел: объявлен, существует, имеет правильный тип.
	if g.StartNodeID == "" {
		return fmt.Errorf("%w: start_node_id is empty", models.ErrNoStartNode)
	}
	start, ok := g.Node(g.StartNodeID)
	if !ok {
		return fmt.Errorf("%w: start_node_id %q does not exist", models.ErrNoStartNode, g.StartNodeID)
	}
	if start.Type != models.NodeTypeStart {
		return fmt.Errorf("%w: node %q has type %q, want %q",
			models.ErrNoStartNode, g.StartNodeID, start.Type, models.NodeTypeStart)
	}

	startCount := 0
	for id, node := range g.Nodes {
		// 2. Инварианты отдельного узла.
		if !node.Type.IsValid() {
			return fmt.Errorf("%w: node %q has unknown type %q", models.ErrMalformedGraph, id, node.Type)
		}
		if node.Type == models.NodeTypeStart {
			startCount++
		}
		if node.Title == "" {
			return fmt.Errorf("%w: node %q has empty title", models.ErrMalformedGraph, id)
		}
		if node.Type == models.NodeTypeEnd && len(node.Choices) > 0 {
			return fmt.Errorf("%w: end node %q has outgoing choices", models.ErrMalformedGraph, id)
		}

		// 3. Инварианты выборов: непустые ID, уникальный текст,
		// подключенные выборы указывают на существующие узлы.
		seenTexts := make(map[string]struct{}, len(node.Choices))
		for i := range node.Choices {
			choice := &node.Choices[i]
			if choice.ID == "" {
				return fmt.Errorf("%w: node %q choice #%d has empty id", models.ErrMalformedGraph, id, i)
			}
			text := strings.TrimSpace(choice.Text)
			if text == "" {
				return fmt.Errorf("%w: node %q choice %q has empty text", models.ErrMalformedGraph, id, choice.ID)
			}
			if _, dup := seenTexts[text]; dup {
				return fmt.Errorf("%w: node %q has duplicate choice text %q", models.ErrMalformedGraph, id, text)
			}
			seenTexts[text] = struct{}{}

			// Пустой target - легальный "неподключенный" выбор,
			// генератор достроит его позже.
			if choice.IsWired() {
				if _, exists := g.Node(choice.TargetNodeID); !exists {
					return fmt.Errorf("%w: node %q choice %q targets missing node %q",
						models.ErrDanglingReference, id, choice.ID, choice.TargetNodeID)
				}
			}
		}
	}

	if startCount != 1 {
		return fmt.Errorf("%w: graph has %d start nodes, want exactly 1", models.ErrNoStartNode, startCount)
	}
	return nil
}
