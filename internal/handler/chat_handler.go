package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseready/petition-score-api/internal/dto"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
	"github.com/caseready/petition-score-api/pkg/response"
)

type chatService interface {
	Ask(ctx context.Context, sessionID string, req dto.ChatRequest) (*dto.ChatResponse, error)
	History(ctx context.Context, sessionID string) ([]dto.ChatMessageResponse, error)
}

// ChatHandler exposes the follow-up chat endpoints.
type ChatHandler struct {
	service chatService
}

// NewChatHandler constructs a chat handler.
func NewChatHandler(svc chatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// Ask godoc
// @Summary Ask a follow-up question about the scoring result
// @Tags Chat
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ChatRequest true "Question"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/chat [post]
func (h *ChatHandler) Ask(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	answer, err := h.service.Ask(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, answer)
}

// History godoc
// @Summary List the recent chat history
// @Tags Chat
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/chat [get]
func (h *ChatHandler) History(c *gin.Context) {
	messages, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages)
}
