package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
	"cyoa-server/internal/repository"
	"cyoa-server/internal/service"
	"cyoa-server/internal/story"
)

func testGraph() *models.StoryGraph {
	return &models.StoryGraph{
		StoryID:     "maze",
		Title:       "The Maze",
		StartNodeID: "start",
		Nodes: map[string]*models.StoryNode{
			"start": {
				ID: "start", Type: models.NodeTypeStart, Title: "Entrance",
				Content: "The maze opens before you.",
				Choices: []models.Choice{
					{ID: "c_in", Text: "Step inside", TargetNodeID: "chamber"},
				},
			},
			"chamber": {
				ID: "chamber", Type: models.NodeTypeEnd, Title: "Chamber",
				Content: "A dead end. The walls close in.",
			},
		},
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lib := story.NewLibrary(t.TempDir(), zap.NewNop())
	require.NoError(t, lib.Add(testGraph()))

	dataDir := t.TempDir()
	sessions := repository.NewFileSessionRepository(dataDir, zap.NewNop())
	stats := repository.NewFileVisitStatsRepository(dataDir, zap.NewNop())
	svc := service.NewGameService(lib, sessions, stats, service.NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	router := gin.New()
	NewGameHandler(svc, zap.NewNop()).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func startGame(t *testing.T, router *gin.Engine) uuid.UUID {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/games", gin.H{"story_id": "maze"})
	require.Equal(t, http.StatusCreated, w.Code)

	var display service.Display
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &display))
	return display.SessionID
}

func TestListStories(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/stories", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stories []service.StoryInfo `json:"stories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Stories, 1)
	assert.Equal(t, "maze", resp.Stories[0].ID)
	assert.Equal(t, 2, resp.Stories[0].Nodes)
}

func TestStartGame_Handler(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/games", gin.H{"story_id": "maze"})
	require.Equal(t, http.StatusCreated, w.Code)

	var display service.Display
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &display))
	assert.Equal(t, "start", display.NodeID)
	assert.Equal(t, []string{"Step inside"}, display.Choices)
}

func TestStartGame_ValidationErrors(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/games", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/games", gin.H{"story_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyChoice_Handler(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startGame(t, router)

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/games/%s/choice", sessionID), gin.H{"choice_text": "Step inside"})
	require.Equal(t, http.StatusOK, w.Code)

	var display service.Display
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &display))
	assert.Equal(t, "chamber", display.NodeID)
	assert.True(t, display.IsEnding)
	assert.False(t, display.Rejected)
}

func TestApplyChoice_RejectedIs200(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startGame(t, router)

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/games/%s/choice", sessionID), gin.H{"choice_text": "Fly away"})
	require.Equal(t, http.StatusOK, w.Code)

	var display service.Display
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &display))
	assert.True(t, display.Rejected)
	assert.Equal(t, "start", display.NodeID)
}

func TestCurrentDisplay_Handler(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startGame(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/games/"+sessionID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Невалидный UUID в пути.
	w = doJSON(t, router, http.MethodGet, "/api/games/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Несуществующая сессия.
	w = doJSON(t, router, http.MethodGet, "/api/games/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryAndContextEndpoints(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startGame(t, router)

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/games/%s/choice", sessionID), gin.H{"choice_text": "Step inside"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/games/%s/history", sessionID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist service.HistoryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.History, 1)
	assert.Equal(t, "Step inside", hist.History[0].ChoiceText)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/games/%s/context", sessionID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ctxResp struct {
		Path      []string `json:"path"`
		Context   string   `json:"context"`
		Available bool     `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ctxResp))
	assert.True(t, ctxResp.Available)
	assert.Equal(t, []string{"start", "chamber"}, ctxResp.Path)
	assert.Contains(t, ctxResp.Context, "The maze opens before you.")
}

func TestStoryMapEndpoint(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startGame(t, router)

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/games/%s/map", sessionID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Nodes []models.NodeSummary `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Nodes, 2)
	assert.Equal(t, "chamber", resp.Nodes[0].ID)
	assert.Equal(t, "start", resp.Nodes[1].ID)
	assert.Equal(t, 1, resp.Nodes[1].Visits)
}

func TestExpand_DisabledReturns503(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startGame(t, router)

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/games/%s/expand", sessionID), gin.H{"choice_text": "Step inside"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
