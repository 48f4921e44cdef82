package scoring

// resultSchema constrains the model output before it is decoded. Fields the
// pipeline persists are required; advisory fields stay optional.
const resultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": [
    "overallScore",
    "overallRating",
    "approvalProbability",
    "rfeProbability",
    "denialRisk",
    "criteriaScores",
    "evidenceQuality",
    "rfePredictions",
    "strengths",
    "weaknesses",
    "recommendations"
  ],
  "properties": {
    "overallScore": { "type": "integer", "minimum": 0, "maximum": 100 },
    "overallRating": { "type": "string" },
    "approvalProbability": { "type": "integer", "minimum": 0, "maximum": 100 },
    "rfeProbability": { "type": "integer", "minimum": 0, "maximum": 100 },
    "denialRisk": { "type": "integer", "minimum": 0, "maximum": 100 },
    "criteriaScores": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["number", "name", "rating", "score"],
        "properties": {
          "number": { "type": "integer" },
          "name": { "type": "string" },
          "rating": { "type": "string" },
          "score": { "type": "integer", "minimum": 0, "maximum": 100 },
          "concerns": { "type": "array", "items": { "type": "string" } }
        }
      }
    },
    "evidenceQuality": {
      "type": "object",
      "required": ["strongCount", "moderateCount", "weakCount", "missingCount", "assessment"],
      "properties": {
        "strongCount": { "type": "integer", "minimum": 0 },
        "moderateCount": { "type": "integer", "minimum": 0 },
        "weakCount": { "type": "integer", "minimum": 0 },
        "missingCount": { "type": "integer", "minimum": 0 },
        "assessment": { "type": "string" }
      }
    },
    "rfePredictions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["topic", "probability"],
        "properties": {
          "topic": { "type": "string" },
          "probability": { "type": "integer", "minimum": 0, "maximum": 100 },
          "officerView": { "type": "string" }
        }
      }
    },
    "strengths": { "type": "array", "items": { "type": "string" } },
    "weaknesses": { "type": "array", "items": { "type": "string" } },
    "recommendations": {
      "type": "object",
      "properties": {
        "critical": { "type": "array", "items": { "type": "string" } },
        "high": { "type": "array", "items": { "type": "string" } },
        "recommended": { "type": "array", "items": { "type": "string" } }
      }
    },
    "fullReport": { "type": "string" }
  }
}`
