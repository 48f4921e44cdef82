package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const pdfOCRPrompt = `Extract ALL text from this PDF document. Return the complete text content, preserving structure where possible. Include all headings, paragraphs, bullet points, and table content. Do not summarize - extract everything.

Filename: %s`

const imageOCRPrompt = `Extract ALL text visible in this image. Return the complete text content.

Filename: %s`

// GeminiOCR implements VisionOCR against a vision-capable Gemini model. The
// client is constructed once at process start and injected.
type GeminiOCR struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiOCR wraps the shared genai client for OCR use.
func NewGeminiOCR(client *genai.Client, model string, logger *zap.Logger) *GeminiOCR {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiOCR{client: client, model: model, logger: logger}
}

// ExtractText sends the binary inline and asks for a full transcription.
func (g *GeminiOCR) ExtractText(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	prompt := imageOCRPrompt
	if mimeType == "application/pdf" {
		prompt = pdfOCRPrompt
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(fmt.Sprintf(prompt, filename)),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.logger.Error("vision ocr call failed", zap.String("filename", filename), zap.Error(err))
		return "", fmt.Errorf("vision ocr: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("vision ocr returned empty content")
	}
	return text, nil
}
