package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

// ErrExpansionDisabled возвращается, когда генератор продолжений не
// сконфигурирован.
var ErrExpansionDisabled = errors.New("story expansion is not enabled")

// GraphExpander достраивает граф: генерирует узел для неподключенного
// выбора и подключает его. Реализация - internal/generator.Expander.
type GraphExpander interface {
	ExpandChoice(ctx context.Context, graph *models.StoryGraph, node *models.StoryNode, choiceText, narrative string) (*models.StoryNode, error)
}

// SetExpander включает расширение графа. Вызывается один раз при
// сборке сервера, до начала обработки запросов.
func (s *GameService) SetExpander(e GraphExpander) {
	s.expander = e
}

// ExpandChoice достраивает историю за неподключенным выбором текущего
// узла сессии и возвращает обновленное отображение: после успешного
// расширения выбор становится доступным.
func (s *GameService) ExpandChoice(ctx context.Context, sessionID uuid.UUID, choiceText string) (*Display, error) {
	if s.expander == nil {
		return nil, ErrExpansionDisabled
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Генератор добавляет узлы в разделяемый граф, пока другие сессии
	// его читают: все расширение идет под замком истории на запись.
	mu := s.storyLock(session.StoryID)
	mu.Lock()
	defer mu.Unlock()

	graph, node, err := s.resolveState(session)
	if err != nil {
		return nil, err
	}

	// Повествовательный контекст пути игрока. Недоступный контекст не
	// блокирует расширение, генератор обойдется текущей сценой.
	narrative := s.narrativeForPath(session, graph)

	newNode, err := s.expander.ExpandChoice(ctx, graph, node, choiceText, narrative)
	if err != nil {
		return nil, err
	}
	s.persistStats(ctx, graph)

	s.logger.Info("Story expanded for session",
		zap.String("sessionID", sessionID.String()),
		zap.String("nodeID", node.ID),
		zap.String("newNode", newNode.ID),
	)
	return s.display(session, graph, node, false), nil
}

func (s *GameService) narrativeForPath(session *models.Session, graph *models.StoryGraph) string {
	path := s.replayPath(session, graph)
	if len(path) == 0 {
		return ""
	}
	contents := make([]string, 0, len(path))
	for _, nodeID := range path {
		node, _ := graph.Node(nodeID)
		contents = append(contents, node.Content)
	}
	return strings.Join(contents, "\n\n")
}
