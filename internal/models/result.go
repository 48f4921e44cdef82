package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CriterionScore is one per-criterion line of the officer evaluation.
type CriterionScore struct {
	Number   int      `json:"number"`
	Name     string   `json:"name"`
	Rating   string   `json:"rating"`
	Score    int      `json:"score"`
	Concerns []string `json:"concerns,omitempty"`
}

// CriterionScores is the ordered per-criterion list, persisted as JSONB.
type CriterionScores []CriterionScore

// EvidenceQuality summarises counts across the four evidentiary tiers.
type EvidenceQuality struct {
	StrongCount   int    `json:"strong_count"`
	ModerateCount int    `json:"moderate_count"`
	WeakCount     int    `json:"weak_count"`
	MissingCount  int    `json:"missing_count"`
	Assessment    string `json:"assessment"`
}

// RFEPrediction is one predicted evidence-request topic.
type RFEPrediction struct {
	Topic       string `json:"topic"`
	Probability int    `json:"probability"`
	OfficerView string `json:"officer_view,omitempty"`
}

// RFEPredictions is the ordered prediction list, persisted as JSONB.
type RFEPredictions []RFEPrediction

// Recommendations groups remediation advice by urgency tier.
type Recommendations struct {
	Critical    []string `json:"critical,omitempty"`
	High        []string `json:"high,omitempty"`
	Recommended []string `json:"recommended,omitempty"`
}

// StringList persists a plain string slice as JSONB.
type StringList []string

// ScoringResult is the write-once-per-successful-run evaluation output for a
// session. Re-running a session replaces the row (upsert on session_id). The
// three probabilities describe independent events and need not sum to 100.
type ScoringResult struct {
	SessionID           string          `db:"session_id" json:"session_id"`
	OverallScore        int             `db:"overall_score" json:"overall_score"`
	OverallRating       string          `db:"overall_rating" json:"overall_rating"`
	ApprovalProbability int             `db:"approval_probability" json:"approval_probability"`
	RFEProbability      int             `db:"rfe_probability" json:"rfe_probability"`
	DenialRisk          int             `db:"denial_risk" json:"denial_risk"`
	CriteriaScores      CriterionScores `db:"criteria_scores" json:"criteria_scores"`
	EvidenceQuality     EvidenceJSON    `db:"evidence_quality" json:"evidence_quality"`
	RFEPredictions      RFEPredictions  `db:"rfe_predictions" json:"rfe_predictions"`
	Strengths           StringList      `db:"strengths" json:"strengths"`
	Weaknesses          StringList      `db:"weaknesses" json:"weaknesses"`
	Recommendations     RecommendJSON   `db:"recommendations" json:"recommendations"`
	FullReport          *string         `db:"full_report" json:"full_report,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// EvidenceJSON wraps EvidenceQuality for JSONB persistence.
type EvidenceJSON struct {
	EvidenceQuality
}

// RecommendJSON wraps Recommendations for JSONB persistence.
type RecommendJSON struct {
	Recommendations
}

func jsonValue(v interface{}, what string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", what, err)
	}
	return data, nil
}

func jsonScan(dst interface{}, value interface{}, what string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, what)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}

// Value marshals the list to JSON for persistence.
func (c CriterionScores) Value() (driver.Value, error) {
	if c == nil {
		c = CriterionScores{}
	}
	return jsonValue(c, "criteria scores")
}

// Scan unmarshals JSONB payloads into the list.
func (c *CriterionScores) Scan(value interface{}) error {
	*c = CriterionScores{}
	return jsonScan(c, value, "criteria scores")
}

// Value marshals the summary to JSON for persistence.
func (e EvidenceJSON) Value() (driver.Value, error) {
	return jsonValue(e.EvidenceQuality, "evidence quality")
}

// Scan unmarshals JSONB payloads into the summary.
func (e *EvidenceJSON) Scan(value interface{}) error {
	*e = EvidenceJSON{}
	return jsonScan(&e.EvidenceQuality, value, "evidence quality")
}

// Value marshals the list to JSON for persistence.
func (p RFEPredictions) Value() (driver.Value, error) {
	if p == nil {
		p = RFEPredictions{}
	}
	return jsonValue(p, "rfe predictions")
}

// Scan unmarshals JSONB payloads into the list.
func (p *RFEPredictions) Scan(value interface{}) error {
	*p = RFEPredictions{}
	return jsonScan(p, value, "rfe predictions")
}

// Value marshals the list to JSON for persistence.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return jsonValue(l, "string list")
}

// Scan unmarshals JSONB payloads into the list.
func (l *StringList) Scan(value interface{}) error {
	*l = StringList{}
	return jsonScan(l, value, "string list")
}

// Value marshals the recommendations to JSON for persistence.
func (r RecommendJSON) Value() (driver.Value, error) {
	return jsonValue(r.Recommendations, "recommendations")
}

// Scan unmarshals JSONB payloads into the recommendations.
func (r *RecommendJSON) Scan(value interface{}) error {
	*r = RecommendJSON{}
	return jsonScan(&r.Recommendations, value, "recommendations")
}
