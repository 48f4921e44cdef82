package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caseready/petition-score-api/internal/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		text     string
		want     models.DocumentCategory
	}{
		{"rfe filename", "RFE-notice.pdf", "", models.CategoryRFEOriginal},
		{"rfe body", "scan.pdf", "This Request for Evidence concerns the petition.", models.CategoryRFEOriginal},
		{"rfe response body", "reply.pdf", "Submitted in response to the request for evidence dated May 3.", models.CategoryRFEResponse},
		{"exhibit filename", "Exhibit-12.pdf", "", models.CategoryExhibit},
		{"contract filename", "employment-agreement.pdf", "", models.CategoryContract},
		{"contract body", "doc.pdf", "The compensation shall be paid monthly.", models.CategoryContract},
		{"support letter", "support-letter.pdf", "", models.CategorySupportLetter},
		{"support letter body", "doc1.pdf", "To Whom It May Concern, I write in support of...", models.CategorySupportLetter},
		{"award", "grammy-certificate.pdf", "", models.CategoryAward},
		{"media", "press-coverage.pdf", "", models.CategoryMedia},
		{"media body", "doc2.pdf", "The article was published in a national magazine.", models.CategoryMedia},
		{"legal", "petition-brief.pdf", "", models.CategoryLegalDocument},
		{"legal body", "doc3.pdf", "Under 8 CFR 214.2(o), the beneficiary qualifies.", models.CategoryLegalDocument},
		{"fallback", "misc.bin", "unrelated content", models.CategoryOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.filename, tc.text))
		})
	}
}

func TestClassifyRFEWinsOverLegalKeywords(t *testing.T) {
	// "petitioner" alone maps to legal_document, but RFE phrasing is
	// evaluated first.
	got := Classify("notice.pdf", "Request for additional evidence: the petitioner must establish...")
	assert.Equal(t, models.CategoryRFEOriginal, got)
}

func TestClassifyIdempotent(t *testing.T) {
	first := Classify("Exhibit-3.pdf", "published coverage of the event")
	second := Classify("Exhibit-3.pdf", "published coverage of the event")
	assert.Equal(t, first, second)
}
