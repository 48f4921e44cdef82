package service

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/caseready/petition-score-api/internal/models"
)

// GeminiChat implements the chat model against Gemini, replaying stored
// conversation turns so the model keeps context across questions.
type GeminiChat struct {
	client *genai.Client
	model  string
}

// NewGeminiChat wraps the shared genai client for chat use.
func NewGeminiChat(client *genai.Client, model string) *GeminiChat {
	return &GeminiChat{client: client, model: model}
}

// Reply generates the next assistant turn.
func (g *GeminiChat) Reply(ctx context.Context, grounding string, history []models.ChatMessage, question string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+2)
	contents = append(contents, genai.NewContentFromText(grounding, genai.RoleUser))
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == models.ChatRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(question, genai.RoleUser))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate chat content: %w", err)
	}
	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", fmt.Errorf("chat model returned empty content")
	}
	return answer, nil
}
