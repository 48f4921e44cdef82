package extract

import (
	"strings"

	"github.com/caseready/petition-score-api/internal/models"
)

// Classify assigns exactly one semantic category from filename and content
// heuristics. Rules are evaluated top to bottom and the first match wins, so
// re-classification of the same inputs is idempotent. Keyword overlaps (e.g.
// "petition" appears in both RFE and legal phrasing) are resolved purely by
// rule order.
func Classify(filename, text string) models.DocumentCategory {
	name := strings.ToLower(filename)
	body := strings.ToLower(text)

	if strings.Contains(name, "rfe") ||
		strings.Contains(body, "request for evidence") ||
		strings.Contains(body, "request for additional evidence") {
		if strings.Contains(body, "in response to") || strings.Contains(body, "response to rfe") {
			return models.CategoryRFEResponse
		}
		return models.CategoryRFEOriginal
	}

	if strings.Contains(name, "exhibit") || strings.Contains(name, "evidence") {
		return models.CategoryExhibit
	}

	if strings.Contains(name, "contract") ||
		strings.Contains(name, "agreement") ||
		strings.Contains(name, "deal") ||
		strings.Contains(name, "memo") ||
		strings.Contains(body, "terms of employment") ||
		strings.Contains(body, "compensation") ||
		strings.Contains(body, "itinerary") {
		return models.CategoryContract
	}

	if strings.Contains(name, "letter") ||
		strings.Contains(name, "support") ||
		strings.Contains(body, "to whom it may concern") ||
		strings.Contains(body, "letter of support") {
		return models.CategorySupportLetter
	}

	if strings.Contains(name, "award") ||
		strings.Contains(name, "certificate") ||
		strings.Contains(body, "certificate of") ||
		strings.Contains(body, "award for") {
		return models.CategoryAward
	}

	if strings.Contains(name, "article") ||
		strings.Contains(name, "press") ||
		strings.Contains(name, "media") ||
		strings.Contains(body, "published") ||
		strings.Contains(body, "newspaper") ||
		strings.Contains(body, "magazine") {
		return models.CategoryMedia
	}

	if strings.Contains(name, "brief") ||
		strings.Contains(name, "petition") ||
		strings.Contains(body, "petitioner") ||
		strings.Contains(body, "beneficiary") ||
		strings.Contains(body, "8 cfr") {
		return models.CategoryLegalDocument
	}

	return models.CategoryOther
}
