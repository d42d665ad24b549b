package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cyoa-server/internal/repository"
	"cyoa-server/internal/story"
)

// GameService реализует игровой цикл: старт сессии, показ текущего
// узла, применение выборов и реконструкция пройденного пути.
// Сериализацию конкурентных запросов к одной сессии обеспечивает
// HTTP-слой (см. internal/handler), сервис считает, что вызовы по
// одной сессии не перекрываются. Граф же разделяется всеми сессиями
// одной истории: счетчики посещений и достройка узлов защищены
// per-story замком (см. storyLock).
type GameService struct {
	library  *story.Library
	sessions repository.SessionRepository
	stats    repository.VisitStatsRepository
	metrics  *Metrics
	logger   *zap.Logger
	expander GraphExpander

	// storyLocks хранит по RWMutex на историю. Независимые сессии
	// одной истории мутируют общий граф (Visits, LastVisited, новые
	// узлы генератора), замок делает эти окна взаимоисключающими.
	storyLocks sync.Map // storyID -> *sync.RWMutex

	// now подменяется в тестах.
	now func() time.Time
}

// NewGameService создает игровой сервис.
func NewGameService(
	library *story.Library,
	sessions repository.SessionRepository,
	stats repository.VisitStatsRepository,
	metrics *Metrics,
	logger *zap.Logger,
) *GameService {
	return &GameService{
		library:  library,
		sessions: sessions,
		stats:    stats,
		metrics:  metrics,
		logger:   logger.Named("GameService"),
		now:      time.Now,
	}
}

// storyLock возвращает замок графа истории. Замок берется на запись в
// операциях, мутирующих граф (StartGame, ApplyChoice, ResumeOrStart,
// ExpandChoice), и на чтение во всех остальных.
func (s *GameService) storyLock(storyID string) *sync.RWMutex {
	mu, _ := s.storyLocks.LoadOrStore(storyID, &sync.RWMutex{})
	return mu.(*sync.RWMutex)
}

// Display - все, что нужно клиенту для отрисовки текущего состояния
// игры: повествование текущего узла и доступные выборы.
type Display struct {
	SessionID uuid.UUID `json:"session_id"`
	StoryID   string    `json:"story_id"`
	NodeID    string    `json:"node_id"`
	NodeType  string    `json:"node_type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Choices   []string  `json:"choices"`
	IsEnding  bool      `json:"is_ending"`
	// Rejected выставляется, когда присланный выбор не распознан или
	// недоступен: состояние игры при этом не изменилось.
	Rejected bool `json:"rejected,omitempty"`
}
