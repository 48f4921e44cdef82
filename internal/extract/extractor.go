package extract

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/caseready/petition-score-api/pkg/errors"
)

// WordsPerPage approximates how much extracted text constitutes one page.
const WordsPerPage = 500

// PlaceholderNoText stands in for documents that yielded no extractable text.
const PlaceholderNoText = "[No text extracted]"

// PlaceholderTooLarge marks scanned documents past the OCR size ceiling.
const PlaceholderTooLarge = "[No text extracted: scanned document exceeds the OCR size limit]"

// Extraction methods recorded for observability.
const (
	MethodPlainText = "plain-text"
	MethodPDFText   = "pdf-text"
	MethodPDFOCR    = "pdf-ocr"
	MethodImageOCR  = "image-ocr"
	MethodDegraded  = "pdf-degraded"
)

// Result is the outcome of extracting one uploaded binary.
type Result struct {
	Text      string
	WordCount int
	PageCount int
	Method    string
}

// VisionOCR renders a binary to a vision-capable model and returns the full
// text content without summarization.
type VisionOCR interface {
	ExtractText(ctx context.Context, data []byte, mimeType, filename string) (string, error)
}

// Config tunes the tiered extraction strategy.
type Config struct {
	Pdftotext        string
	FastPathMinChars int
	OCRMaxFileBytes  int64
	OCRTimeout       time.Duration
}

// Extractor converts uploaded binaries into text. PDFs take the fast
// structural parse first; scanned PDFs and images fall back to vision OCR.
type Extractor struct {
	cfg    Config
	runner Runner
	ocr    VisionOCR
	logger *zap.Logger
}

// NewExtractor builds an extractor, filling unset config with defaults.
func NewExtractor(cfg Config, ocr VisionOCR, logger *zap.Logger) *Extractor {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.FastPathMinChars <= 0 {
		cfg.FastPathMinChars = 500
	}
	if cfg.OCRMaxFileBytes <= 0 {
		cfg.OCRMaxFileBytes = 5 * 1024 * 1024
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = 3 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, ocr: ocr, logger: logger}
}

// Extract picks a strategy based on the declared MIME type.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, filename string) (Result, error) {
	switch {
	case strings.HasPrefix(mimeType, "text/"):
		return e.extractPlainText(data), nil
	case mimeType == "application/pdf":
		return e.extractPDF(ctx, data, filename)
	case strings.HasPrefix(mimeType, "image/"):
		return e.extractImage(ctx, data, mimeType, filename)
	default:
		return Result{}, appErrors.Clone(appErrors.ErrExtraction, fmt.Sprintf("unsupported mime type %q", mimeType))
	}
}

func (e *Extractor) extractPlainText(data []byte) Result {
	text := string(data)
	words := countWords(text)
	return Result{
		Text:      text,
		WordCount: words,
		PageCount: pagesForWords(words),
		Method:    MethodPlainText,
	}
}

// extractPDF runs the structural text parser first; a scant yield means the
// document is presumed scanned and escalates to OCR when under the size
// ceiling. Above the ceiling OCR is skipped as a cost guard.
func (e *Extractor) extractPDF(ctx context.Context, data []byte, filename string) (Result, error) {
	fastText, fastPages, fastErr := e.pdfText(ctx, data)
	trimmed := strings.TrimSpace(fastText)

	if fastErr == nil && len(trimmed) >= e.cfg.FastPathMinChars {
		words := countWords(fastText)
		return Result{Text: fastText, WordCount: words, PageCount: maxInt(fastPages, 1), Method: MethodPDFText}, nil
	}

	if fastErr != nil {
		e.logger.Warn("pdf fast path failed", zap.String("filename", filename), zap.Error(fastErr))
	}

	if int64(len(data)) >= e.cfg.OCRMaxFileBytes {
		if fastErr != nil && trimmed == "" {
			return Result{}, appErrors.Wrap(fastErr, appErrors.ErrExtraction.Code, appErrors.ErrExtraction.Status,
				"pdf parse failed and file exceeds OCR size limit")
		}
		text := fastText
		if trimmed == "" {
			text = PlaceholderTooLarge
		}
		words := countWords(text)
		return Result{Text: text, WordCount: words, PageCount: maxInt(fastPages, 1), Method: MethodDegraded}, nil
	}

	ocrText, err := e.runOCR(ctx, data, "application/pdf", filename)
	if err != nil {
		if trimmed != "" {
			e.logger.Warn("ocr fallback failed, keeping scant parser text",
				zap.String("filename", filename), zap.Error(err))
			words := countWords(fastText)
			return Result{Text: fastText, WordCount: words, PageCount: maxInt(fastPages, 1), Method: MethodDegraded}, nil
		}
		return Result{}, appErrors.Wrap(err, appErrors.ErrExtraction.Code, appErrors.ErrExtraction.Status,
			"ocr fallback failed with no usable parser text")
	}
	words := countWords(ocrText)
	return Result{Text: ocrText, WordCount: words, PageCount: pagesForWords(words), Method: MethodPDFOCR}, nil
}

func (e *Extractor) extractImage(ctx context.Context, data []byte, mimeType, filename string) (Result, error) {
	text, err := e.runOCR(ctx, data, mimeType, filename)
	if err != nil {
		return Result{}, appErrors.Wrap(err, appErrors.ErrExtraction.Code, appErrors.ErrExtraction.Status,
			"image ocr failed")
	}
	return Result{Text: text, WordCount: countWords(text), PageCount: 1, Method: MethodImageOCR}, nil
}

func (e *Extractor) runOCR(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	if e.ocr == nil {
		return "", fmt.Errorf("ocr service not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OCRTimeout)
	defer cancel()
	return e.ocr.ExtractText(ctx, data, mimeType, filename)
}

// pdfText shells out to pdftotext on a temp copy of the binary.
// A form-feed \f is used as page separator by default.
func (e *Extractor) pdfText(ctx context.Context, data []byte) (string, int, error) {
	tmp, err := os.CreateTemp("", "psa-pdf-*.pdf")
	if err != nil {
		return "", 0, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		return "", 0, err
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return "", 0, fmt.Errorf("pdftotext: %w (%s)", err, strings.TrimSpace(string(errb)))
	}
	text := string(out)
	pages := 1 + strings.Count(text, "\f")
	return text, pages, nil
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func pagesForWords(words int) int {
	return maxInt(1, int(math.Ceil(float64(words)/float64(WordsPerPage))))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
