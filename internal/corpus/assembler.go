package corpus

import (
	"strings"

	"github.com/caseready/petition-score-api/internal/models"
)

// DefaultMaxLength caps the assembled corpus at roughly sixty pages of text.
const DefaultMaxLength = 150000

// TruncationNotice tells downstream consumers that scoring saw partial content.
const TruncationNotice = "\n\n[... Document truncated for processing ...]"

const (
	blockSeparator = "\n\n---\n\n"
	genericLabel   = "Document"
	noTextBody     = "[No text extracted]"
)

// Assembler merges per-file extracts into one bounded evaluation corpus.
type Assembler struct {
	maxLength int
}

// NewAssembler builds an assembler; maxLength <= 0 selects the default cap.
func NewAssembler(maxLength int) *Assembler {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Assembler{maxLength: maxLength}
}

// Assemble emits one header-tagged block per file in registration order and
// joins them with the block separator. Output is deterministic for a fixed
// file list; when the concatenation exceeds the cap it is cut to exactly the
// cap and the truncation notice appended.
func (a *Assembler) Assemble(files []models.UploadedFile) string {
	blocks := make([]string, 0, len(files))
	for _, f := range files {
		label := genericLabel
		if f.Category != nil && *f.Category != "" {
			label = string(*f.Category)
		}
		body := noTextBody
		if f.ExtractedText != nil && *f.ExtractedText != "" {
			body = *f.ExtractedText
		}
		blocks = append(blocks, "=== FILE: "+label+" ===\n"+body)
	}

	content := strings.Join(blocks, blockSeparator)
	if len(content) > a.maxLength {
		return content[:a.maxLength] + TruncationNotice
	}
	return content
}

// HasContent reports whether any file contributed usable text.
func HasContent(files []models.UploadedFile) bool {
	for _, f := range files {
		if f.ExtractedText != nil && strings.TrimSpace(*f.ExtractedText) != "" {
			return true
		}
	}
	return false
}
