package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/caseready/petition-score-api/internal/dto"
	"github.com/caseready/petition-score-api/internal/models"
	appErrors "github.com/caseready/petition-score-api/pkg/errors"
)

type chatMessageStore interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
}

// chatModel answers a question given grounding context and prior turns.
type chatModel interface {
	Reply(ctx context.Context, grounding string, history []models.ChatMessage, question string) (string, error)
}

// ChatService answers follow-up questions about a completed scoring run,
// grounded on the persisted result.
type ChatService struct {
	sessions     scoringSessionStore
	results      scoringResultReader
	messages     chatMessageStore
	model        chatModel
	historyLimit int
	logger       *zap.Logger
}

// NewChatService constructs the service.
func NewChatService(
	sessions scoringSessionStore,
	results scoringResultReader,
	messages chatMessageStore,
	model chatModel,
	historyLimit int,
	logger *zap.Logger,
) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessions:     sessions,
		results:      results,
		messages:     messages,
		model:        model,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Ask records the question, generates a grounded answer, and records it.
func (s *ChatService) Ask(ctx context.Context, sessionID string, req dto.ChatRequest) (*dto.ChatResponse, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scoring session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load scoring session")
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "scoring has not completed for this session")
	}

	result, err := s.results.GetBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no scoring result for this session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load scoring result")
	}

	history, err := s.messages.ListBySession(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load chat history")
	}

	answer, err := s.model.Reply(ctx, groundingFor(session, result), history, req.Message)
	if err != nil {
		s.logger.Error("chat reply failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrScoring.Code, appErrors.ErrScoring.Status, "failed to generate chat answer")
	}

	userMsg := &models.ChatMessage{SessionID: sessionID, Role: models.ChatRoleUser, Content: req.Message}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to persist chat message")
	}
	assistantMsg := &models.ChatMessage{SessionID: sessionID, Role: models.ChatRoleAssistant, Content: answer}
	if err := s.messages.Create(ctx, assistantMsg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to persist chat message")
	}

	return &dto.ChatResponse{
		SessionID: sessionID,
		Answer: dto.ChatMessageResponse{
			ID:        assistantMsg.ID,
			Role:      assistantMsg.Role,
			Content:   assistantMsg.Content,
			CreatedAt: assistantMsg.CreatedAt,
		},
	}, nil
}

// History returns the recent conversation, oldest first.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]dto.ChatMessageResponse, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListBySession(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load chat history")
	}
	out := make([]dto.ChatMessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, dto.ChatMessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func groundingFor(session *models.ScoringSession, result *models.ScoringResult) string {
	summary, err := json.Marshal(result)
	if err != nil {
		summary = []byte("{}")
	}
	return fmt.Sprintf(`You are an immigration petition analyst answering follow-up questions about a completed officer-style evaluation.
Visa type: %s. Document type: %s.
The evaluation result is below as JSON. Answer only from this evaluation; say so when the evaluation does not cover a question.

%s`, session.VisaType, session.DocumentType, summary)
}
