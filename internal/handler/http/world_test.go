package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pixel-platformer/internal/domain"
	httpHandler "pixel-platformer/internal/handler/http"
	"pixel-platformer/internal/repository"
	"pixel-platformer/internal/repository/mocks"
	"pixel-platformer/internal/service"
)

// newLevelRouter 组装单关卡查询路由。
func newLevelRouter(mockLevelRepo *mocks.LevelRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	mockWorldRepo := new(mocks.WorldRepository)
	worldService := service.NewWorldService(mockWorldRepo, mockLevelRepo)
	handler := httpHandler.NewWorldHandler(worldService, nil)

	router := gin.New()
	router.GET("/api/v1/levels/:levelId", handler.GetLevel)
	return router
}

func TestGetLevel_ReturnsLevel(t *testing.T) {
	// Arrange
	mockLevelRepo := new(mocks.LevelRepository)
	level := &domain.Level{ID: 3, WorldID: 1, Name: "Lava Leap", OrderIdx: 2, Difficulty: "hard", RewardXp: 100}
	mockLevelRepo.On("FindByID", mock.Anything, uint(3)).Return(level, nil).Once()

	router := newLevelRouter(mockLevelRepo)

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/levels/3", nil)
	router.ServeHTTP(w, req)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var body domain.Level
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, uint(3), body.ID)
	assert.Equal(t, "Lava Leap", body.Name)
	assert.Equal(t, 100, body.RewardXp)
	mockLevelRepo.AssertExpectations(t)
}

func TestGetLevel_UnknownLevelReturns404(t *testing.T) {
	// Arrange
	mockLevelRepo := new(mocks.LevelRepository)
	mockLevelRepo.On("FindByID", mock.Anything, uint(999)).
		Return(nil, repository.ErrLevelNotFound).Once()

	router := newLevelRouter(mockLevelRepo)

	// Act
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/levels/999", nil)
	router.ServeHTTP(w, req)

	// Assert
	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Level not found", body["error"])
}

func TestGetLevel_InvalidIDReturns400(t *testing.T) {
	mockLevelRepo := new(mocks.LevelRepository)
	router := newLevelRouter(mockLevelRepo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/levels/banana", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockLevelRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}
