package repository

import (
	"context"

	"github.com/google/uuid"

	"cyoa-server/internal/models"
)

// SessionRepository определяет контракт хранения игровых сессий.
// Реализации: файловая (по умолчанию) и Redis.
type SessionRepository interface {
	// Save атомарно сохраняет полный снимок сессии.
	// Частично записанный снимок никогда не виден читателям.
	Save(ctx context.Context, session *models.Session) error
	// GetByID возвращает сессию по ID.
	// Возвращает models.ErrNotFound, если сессии нет, и
	// models.ErrCorruptSnapshot, если снимок не декодируется.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// VisitStatsRepository хранит счетчики посещений узлов отдельно от
// авторского файла истории. Сам файл истории никогда не
// перезаписывается во время игры.
type VisitStatsRepository interface {
	// Save сохраняет текущие счетчики посещений графа.
	Save(ctx context.Context, graph *models.StoryGraph) error
	// Apply накладывает ранее сохраненные счетчики на узлы графа.
	// Отсутствие сохраненной статистики не является ошибкой.
	Apply(ctx context.Context, graph *models.StoryGraph) error
}
