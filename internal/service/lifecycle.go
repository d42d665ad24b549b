package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

// StartGame создает новую сессию для истории и ставит игрока на
// стартовый узел. Посещение стартового узла засчитывается сразу.
func (s *GameService) StartGame(ctx context.Context, storyID string) (*Display, error) {
	graph, err := s.library.Graph(storyID)
	if err != nil {
		return nil, err
	}

	// Посещение стартового узла мутирует разделяемый граф.
	mu := s.storyLock(storyID)
	mu.Lock()
	defer mu.Unlock()

	start, ok := graph.StartNode()
	if !ok {
		// Граф прошел валидацию при загрузке, сюда попадать не должны.
		return nil, fmt.Errorf("story %q: %w", storyID, models.ErrNoStartNode)
	}

	now := s.now()
	session := models.NewSession(storyID, start.ID, now)
	prevVisits, prevVisited := start.Visits, start.LastVisited
	start.Visit(now)

	if err := s.sessions.Save(ctx, session); err != nil {
		start.Visits, start.LastVisited = prevVisits, prevVisited
		return nil, fmt.Errorf("persisting new session: %w", err)
	}
	s.persistStats(ctx, graph)

	s.metrics.SessionsStarted.WithLabelValues(storyID).Inc()
	s.logger.Info("Game session started",
		zap.String("sessionID", session.ID.String()),
		zap.String("storyID", storyID),
	)
	return s.display(session, graph, start, false), nil
}

// ResumeOrStart загружает существующую сессию. Отсутствие снимка - это
// штатный путь новой сессии, а не ошибка; нечитаемый снимок тоже
// начинает игру заново. В обоих случаях сессия создается под тем же ID,
// чтобы клиент не терял свою ссылку.
func (s *GameService) ResumeOrStart(ctx context.Context, sessionID uuid.UUID, storyID string) (*Display, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err == nil {
		return s.CurrentDisplay(ctx, session.ID)
	}
	switch {
	case errors.Is(err, models.ErrCorruptSnapshot):
		s.metrics.SnapshotRecoveries.Inc()
		s.logger.Warn("Session snapshot unreadable, restarting game",
			zap.String("sessionID", sessionID.String()),
			zap.String("storyID", storyID),
			zap.Error(err),
		)
	case errors.Is(err, models.ErrNotFound):
		s.logger.Info("No snapshot for session, starting fresh",
			zap.String("sessionID", sessionID.String()),
			zap.String("storyID", storyID),
		)
	default:
		return nil, err
	}

	graph, gerr := s.library.Graph(storyID)
	if gerr != nil {
		return nil, gerr
	}

	mu := s.storyLock(storyID)
	mu.Lock()
	defer mu.Unlock()

	start, ok := graph.StartNode()
	if !ok {
		return nil, fmt.Errorf("story %q: %w", storyID, models.ErrNoStartNode)
	}

	now := s.now()
	fresh := models.NewSession(storyID, start.ID, now)
	fresh.ID = sessionID
	prevVisits, prevVisited := start.Visits, start.LastVisited
	start.Visit(now)

	if err := s.sessions.Save(ctx, fresh); err != nil {
		start.Visits, start.LastVisited = prevVisits, prevVisited
		return nil, fmt.Errorf("persisting recovered session: %w", err)
	}
	s.persistStats(ctx, graph)
	return s.display(fresh, graph, start, false), nil
}

// persistStats сохраняет счетчики посещений. Статистика вспомогательная,
// ее потеря не должна ронять игровую операцию.
func (s *GameService) persistStats(ctx context.Context, graph *models.StoryGraph) {
	if err := s.stats.Save(ctx, graph); err != nil {
		s.logger.Warn("Failed to persist visit stats",
			zap.String("storyID", graph.StoryID),
			zap.Error(err),
		)
	}
}
