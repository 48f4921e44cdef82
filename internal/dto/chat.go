package dto

import (
	"time"

	"github.com/caseready/petition-score-api/internal/models"
)

// ChatRequest captures POST /sessions/:id/chat payload.
type ChatRequest struct {
	Message string `json:"message" binding:"required,max=4000"`
}

// ChatMessageResponse is one conversation turn.
type ChatMessageResponse struct {
	ID        string          `json:"id"`
	Role      models.ChatRole `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// ChatResponse returns the assistant answer for a submitted question.
type ChatResponse struct {
	SessionID string              `json:"session_id"`
	Answer    ChatMessageResponse `json:"answer"`
}
