package model

type ConfidenceBreakdown struct {
	QueryUnderstanding   float64 `json:"query_understanding"`
	IntentClassification float64 `json:"intent_classification"`
	EntityExtraction     float64 `json:"entity_extraction"`
	TaskPlanning         float64 `json:"task_planning"`
	Execution            float64 `json:"execution"`
}

// ConfidenceScore is recomputed on every turn and never persisted.
type ConfidenceScore struct {
	Overall           float64             `json:"overall"`
	Breakdown         ConfidenceBreakdown `json:"breakdown"`
	NeedsConfirmation bool                `json:"needs_confirmation"`
	Ambiguities       []string            `json:"ambiguities"`
}
