package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

// resolveState находит граф и текущий узел загруженной сессии.
// Сессия, указывающая на исчезнувший узел, считается осиротевшей.
// Вызывается под замком истории сессии.
func (s *GameService) resolveState(session *models.Session) (*models.StoryGraph, *models.StoryNode, error) {
	graph, err := s.library.Graph(session.StoryID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: session %s references story %q",
			models.ErrOrphanedSession, session.ID, session.StoryID)
	}
	node, ok := graph.Node(session.CurrentNodeID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: session %s is at missing node %q",
			models.ErrOrphanedSession, session.ID, session.CurrentNodeID)
	}
	return graph, node, nil
}

func (s *GameService) display(session *models.Session, graph *models.StoryGraph, node *models.StoryNode, rejected bool) *Display {
	return &Display{
		SessionID: session.ID,
		StoryID:   graph.StoryID,
		NodeID:    node.ID,
		NodeType:  string(node.Type),
		Title:     node.Title,
		Content:   node.Content,
		Choices:   node.AvailableChoices(session.PlayerAttributes),
		IsEnding:  node.Type == models.NodeTypeEnd,
		Rejected:  rejected,
	}
}

// CurrentDisplay возвращает отображение текущего узла сессии.
func (s *GameService) CurrentDisplay(ctx context.Context, sessionID uuid.UUID) (*Display, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	mu := s.storyLock(session.StoryID)
	mu.RLock()
	defer mu.RUnlock()

	graph, node, err := s.resolveState(session)
	if err != nil {
		return nil, err
	}
	return s.display(session, graph, node, false), nil
}

// ApplyChoice применяет выбор игрока, заданный текстом.
//
// Нераспознанный или недоступный выбор - не ошибка: возвращается
// неизмененное отображение с флагом Rejected, состояние не мутирует.
// Переход выполняется атомарно: либо сохраняется полностью новое
// состояние, либо при сбое записи все мутации откатываются.
func (s *GameService) ApplyChoice(ctx context.Context, sessionID uuid.UUID, choiceText string) (*Display, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Переход мутирует разделяемый граф (Visits, LastVisited), поэтому
	// замок истории берется на запись на все окно мутации и персиста.
	mu := s.storyLock(session.StoryID)
	mu.Lock()
	defer mu.Unlock()

	graph, node, err := s.resolveState(session)
	if err != nil {
		return nil, err
	}

	// 1. Сопоставление: точное совпадение текста после обрезки пробелов.
	choice := node.FindChoiceByText(choiceText)
	if choice == nil || !choice.IsWired() || !choice.IsAvailable(session.PlayerAttributes) {
		s.metrics.ChoicesApplied.WithLabelValues(graph.StoryID, "rejected").Inc()
		s.logger.Debug("Choice rejected",
			zap.String("sessionID", sessionID.String()),
			zap.String("nodeID", node.ID),
			zap.String("choiceText", strings.TrimSpace(choiceText)),
		)
		return s.display(session, graph, node, true), nil
	}

	target, ok := graph.Node(choice.TargetNodeID)
	if !ok {
		// Валидация графа такое не пропускает, но генератор мог
		// изменить граф после загрузки.
		return nil, fmt.Errorf("%w: choice %q targets node %q",
			models.ErrBrokenEdge, choice.ID, choice.TargetNodeID)
	}

	// 2. Мутация в памяти с запоминанием состояния для отката.
	now := s.now()
	prev := traversalSnapshot{
		nodeID:      session.CurrentNodeID,
		historyLen:  len(session.History),
		timelineLen: len(session.Timeline),
		activity:    session.LastActivityAt,
		visits:      target.Visits,
		lastVisited: target.LastVisited,
	}
	prev.rememberAttributes(session, choice)

	session.CurrentNodeID = target.ID
	session.RecordChoice(choice, now)
	for attr, value := range choice.Effects {
		session.PlayerAttributes[attr] = value
	}
	target.Visit(now)

	// 3. Персист. При сбое откатываем все, запрос можно повторять.
	if err := s.sessions.Save(ctx, session); err != nil {
		prev.restore(session, target)
		s.metrics.ChoicesApplied.WithLabelValues(graph.StoryID, "failed").Inc()
		return nil, fmt.Errorf("persisting session after choice: %w", err)
	}
	s.persistStats(ctx, graph)

	s.metrics.ChoicesApplied.WithLabelValues(graph.StoryID, "applied").Inc()
	s.logger.Info("Choice applied",
		zap.String("sessionID", sessionID.String()),
		zap.String("fromNode", prev.nodeID),
		zap.String("toNode", target.ID),
		zap.String("choiceID", choice.ID),
	)
	return s.display(session, graph, target, false), nil
}

type traversalSnapshot struct {
	nodeID      string
	historyLen  int
	timelineLen int
	activity    time.Time
	visits      int
	lastVisited *time.Time

	prevAttrs    map[string]interface{}
	missingAttrs []string
}

// rememberAttributes запоминает прежние значения атрибутов, которые
// затронут эффекты выбора.
func (p *traversalSnapshot) rememberAttributes(session *models.Session, choice *models.Choice) {
	if len(choice.Effects) == 0 {
		return
	}
	p.prevAttrs = make(map[string]interface{})
	for attr := range choice.Effects {
		if old, ok := session.PlayerAttributes[attr]; ok {
			p.prevAttrs[attr] = old
		} else {
			p.missingAttrs = append(p.missingAttrs, attr)
		}
	}
}

func (p *traversalSnapshot) restore(session *models.Session, target *models.StoryNode) {
	session.CurrentNodeID = p.nodeID
	session.History = session.History[:p.historyLen]
	session.Timeline = session.Timeline[:p.timelineLen]
	session.LastActivityAt = p.activity
	for attr, old := range p.prevAttrs {
		session.PlayerAttributes[attr] = old
	}
	for _, attr := range p.missingAttrs {
		delete(session.PlayerAttributes, attr)
	}
	target.Visits = p.visits
	target.LastVisited = p.lastVisited
}

// PathFromRoot восстанавливает путь от стартового узла до текущего,
// детерминированно проигрывая историю выборов сессии. При циклах
// побеждает фактически случившийся обход. Если история не сходится с
// графом (например, граф сменился), путь считается недоступным и
// возвращается nil.
func (s *GameService) PathFromRoot(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	mu := s.storyLock(session.StoryID)
	mu.RLock()
	defer mu.RUnlock()

	graph, _, err := s.resolveState(session)
	if err != nil {
		return nil, err
	}
	return s.replayPath(session, graph), nil
}

func (s *GameService) replayPath(session *models.Session, graph *models.StoryGraph) []string {
	path := make([]string, 0, len(session.History)+1)
	if _, ok := graph.Node(graph.StartNodeID); !ok {
		return nil
	}
	path = append(path, graph.StartNodeID)

	for _, record := range session.History {
		if _, ok := graph.Node(record.TargetNodeID); !ok {
			s.logger.Warn("Choice history references missing node, path unavailable",
				zap.String("sessionID", session.ID.String()),
				zap.String("nodeID", record.TargetNodeID),
			)
			return nil
		}
		path = append(path, record.TargetNodeID)
	}

	if path[len(path)-1] != session.CurrentNodeID {
		s.logger.Warn("Choice history does not end at current node, path unavailable",
			zap.String("sessionID", session.ID.String()),
			zap.String("currentNodeID", session.CurrentNodeID),
		)
		return nil
	}
	return path
}

// StoryContext собирает повествовательный контекст пройденного пути:
// содержимое узлов от старта до текущего, разделенное пустой строкой.
// Пустая строка означает, что контекст недоступен.
func (s *GameService) StoryContext(ctx context.Context, sessionID uuid.UUID) (string, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	mu := s.storyLock(session.StoryID)
	mu.RLock()
	defer mu.RUnlock()

	graph, _, err := s.resolveState(session)
	if err != nil {
		return "", err
	}
	return s.narrativeForPath(session, graph), nil
}

// HistoryView - история выборов и таймлайн сессии.
type HistoryView struct {
	SessionID uuid.UUID              `json:"session_id"`
	StoryID   string                 `json:"story_id"`
	History   []models.ChoiceRecord  `json:"choice_history"`
	Timeline  []models.TimelineEvent `json:"timeline"`
}

// History возвращает лог выборов и таймлайн сессии.
func (s *GameService) History(ctx context.Context, sessionID uuid.UUID) (*HistoryView, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	mu := s.storyLock(session.StoryID)
	mu.RLock()
	defer mu.RUnlock()

	graph, _, err := s.resolveState(session)
	if err != nil {
		return nil, err
	}
	return &HistoryView{
		SessionID: session.ID,
		StoryID:   graph.StoryID,
		History:   session.History,
		Timeline:  session.Timeline,
	}, nil
}

// StoryMap возвращает сводку по всем узлам графа сессии,
// отсортированную по ID узла.
func (s *GameService) StoryMap(ctx context.Context, sessionID uuid.UUID) ([]models.NodeSummary, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Обход graph.Nodes конкурирует с достройкой графа генератором,
	// читаем под замком истории.
	mu := s.storyLock(session.StoryID)
	mu.RLock()
	defer mu.RUnlock()

	graph, _, err := s.resolveState(session)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.NodeSummary, 0, len(graph.Nodes))
	for _, node := range graph.Nodes {
		var lastVisited *string
		if node.LastVisited != nil {
			v := node.LastVisited.Format(time.RFC3339)
			lastVisited = &v
		}
		summaries = append(summaries, models.NodeSummary{
			ID:          node.ID,
			Type:        node.Type,
			Title:       node.Title,
			Visits:      node.Visits,
			LastVisited: lastVisited,
			Choices:     node.Choices,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// StoryInfo - краткая сводка по истории для списка.
type StoryInfo struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	Nodes  int    `json:"nodes"`
}

// Stories возвращает сводки по всем загруженным историям.
func (s *GameService) Stories() []StoryInfo {
	ids := s.library.StoryIDs()
	infos := make([]StoryInfo, 0, len(ids))
	for _, id := range ids {
		graph, err := s.library.Graph(id)
		if err != nil {
			continue
		}
		mu := s.storyLock(id)
		mu.RLock()
		infos = append(infos, StoryInfo{
			ID:     graph.StoryID,
			Title:  graph.Title,
			Author: graph.Author,
			Nodes:  len(graph.Nodes),
		})
		mu.RUnlock()
	}
	return infos
}
