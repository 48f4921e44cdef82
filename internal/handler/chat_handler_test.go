package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseready/petition-score-api/internal/dto"
	"github.com/caseready/petition-score-api/internal/models"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
)

type chatServiceMock struct {
	askResp     *dto.ChatResponse
	askErr      error
	historyResp []dto.ChatMessageResponse
	historyErr  error
	lastAsk     dto.ChatRequest
}

func (m *chatServiceMock) Ask(ctx context.Context, sessionID string, req dto.ChatRequest) (*dto.ChatResponse, error) {
	m.lastAsk = req
	return m.askResp, m.askErr
}

func (m *chatServiceMock) History(ctx context.Context, sessionID string) ([]dto.ChatMessageResponse, error) {
	return m.historyResp, m.historyErr
}

func TestChatHandlerAsk(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &chatServiceMock{
		askResp: &dto.ChatResponse{
			SessionID: "s1",
			Answer:    dto.ChatMessageResponse{ID: "m1", Role: models.ChatRoleAssistant, Content: "grounded answer"},
		},
	}
	h := NewChatHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/s1/chat", bytes.NewBufferString(`{"message":"why 72?"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.Ask(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "why 72?", mockSvc.lastAsk.Message)
	assert.Contains(t, w.Body.String(), "grounded answer")
}

func TestChatHandlerAskMissingMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(&chatServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/s1/chat", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.Ask(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandlerAskNotCompleted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(&chatServiceMock{
		askErr: appErrors.Clone(appErrors.ErrConflict, "scoring has not completed for this session"),
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/s1/chat", bytes.NewBufferString(`{"message":"done?"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.Ask(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestChatHandlerHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(&chatServiceMock{
		historyResp: []dto.ChatMessageResponse{
			{ID: "m1", Role: models.ChatRoleUser, Content: "q"},
			{ID: "m2", Role: models.ChatRoleAssistant, Content: "a"},
		},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/sessions/s1/chat", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"m2"`)
}
