package handler

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cyoa-server/internal/generator"
	"cyoa-server/internal/models"
	"cyoa-server/internal/service"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// GameHandler обрабатывает HTTP запросы игрового сервера.
// Запросы к одной сессии сериализуются per-session мьютексом: движок
// рассчитывает, что операции над сессией не перекрываются.
type GameHandler struct {
	service *service.GameService
	logger  *zap.Logger

	// Мьютексы живут столько же, сколько процесс. Сессии не удаляются,
	// поэтому и записи отсюда не вычищаются.
	sessionLocks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewGameHandler создает новый GameHandler.
func NewGameHandler(s *service.GameService, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		service: s,
		logger:  logger.Named("GameHandler"),
	}
}

// RegisterRoutes регистрирует маршруты игрового API.
func (h *GameHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api")
	{
		api.GET("/stories", h.listStories)

		api.POST("/games", h.startGame)
		games := api.Group("/games/:session_id")
		{
			games.GET("", h.currentDisplay)
			games.POST("/choice", h.applyChoice)
			games.GET("/history", h.history)
			games.GET("/context", h.storyContext)
			games.GET("/map", h.storyMap)
			games.POST("/expand", h.expand)
		}
	}
}

func (h *GameHandler) lockSession(id uuid.UUID) func() {
	m, _ := h.sessionLocks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (h *GameHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid session_id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError транслирует ошибки доменного слоя в HTTP статусы.
func (h *GameHandler) respondError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrCorruptSnapshot),
		errors.Is(err, models.ErrOrphanedSession),
		errors.Is(err, models.ErrBrokenEdge):
		status = http.StatusConflict
	case errors.Is(err, service.ErrExpansionDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, generator.ErrAIGenerationFailed):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(status, APIError{Message: models.ErrInternalServer.Error()})
		return
	}
	c.JSON(status, APIError{Message: err.Error()})
}

func (h *GameHandler) listStories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stories": h.service.Stories()})
}

type startGameRequest struct {
	StoryID string `json:"story_id" binding:"required"`
	// SessionID продолжает существующую сессию; при нечитаемом снимке
	// игра начнется заново под тем же ID.
	SessionID *uuid.UUID `json:"session_id,omitempty"`
}

func (h *GameHandler) startGame(c *gin.Context) {
	var req startGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "story_id is required"})
		return
	}

	if req.SessionID != nil {
		defer h.lockSession(*req.SessionID)()
		display, err := h.service.ResumeOrStart(c.Request.Context(), *req.SessionID, req.StoryID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, display)
		return
	}

	display, err := h.service.StartGame(c.Request.Context(), req.StoryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, display)
}

func (h *GameHandler) currentDisplay(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	defer h.lockSession(id)()

	display, err := h.service.CurrentDisplay(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, display)
}

type applyChoiceRequest struct {
	ChoiceText string `json:"choice_text" binding:"required"`
}

func (h *GameHandler) applyChoice(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req applyChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "choice_text is required"})
		return
	}

	defer h.lockSession(id)()
	display, err := h.service.ApplyChoice(c.Request.Context(), id, req.ChoiceText)
	if err != nil {
		h.respondError(c, err)
		return
	}
	// Отклоненный выбор - тоже 200: состояние не изменилось, флаг
	// rejected в теле.
	c.JSON(http.StatusOK, display)
}

func (h *GameHandler) history(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	defer h.lockSession(id)()

	view, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GameHandler) storyContext(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	defer h.lockSession(id)()

	path, err := h.service.PathFromRoot(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	narrative, err := h.service.StoryContext(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"path":       path,
		"context":    narrative,
		"available":  len(path) > 0,
	})
}

func (h *GameHandler) storyMap(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	defer h.lockSession(id)()

	summaries, err := h.service.StoryMap(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "nodes": summaries})
}

type expandRequest struct {
	ChoiceText string `json:"choice_text" binding:"required"`
}

func (h *GameHandler) expand(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req expandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "choice_text is required"})
		return
	}

	defer h.lockSession(id)()
	display, err := h.service.ExpandChoice(c.Request.Context(), id, req.ChoiceText)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, display)
}
