package model

type Intent string

const (
	IntentHealthCheck Intent = "health_check"
	IntentRiskQuery   Intent = "risk_query"
	IntentDiagnosis   Intent = "diagnosis"
	IntentSolution    Intent = "solution"
	IntentAggregation Intent = "aggregation"
	IntentGeneral     Intent = "general"
)

// Intents lists every intent a classifier may return.
var Intents = []Intent{
	IntentHealthCheck,
	IntentRiskQuery,
	IntentDiagnosis,
	IntentSolution,
	IntentAggregation,
	IntentGeneral,
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// NeedsSubject reports whether answering the intent requires a merchant.
func (i Intent) NeedsSubject() bool {
	switch i {
	case IntentHealthCheck, IntentRiskQuery, IntentDiagnosis, IntentSolution:
		return true
	default:
		return false
	}
}

type IntentResult struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	// FromContext is set when the intent was taken from the conversation
	// rather than the query text. Such results must not be cached by text.
	FromContext bool `json:"from_context,omitempty"`
}

func NewIntentResult(intent Intent, confidence float64) *IntentResult {
	return &IntentResult{Intent: intent, Confidence: Clamp01(confidence)}
}

type EntityResult struct {
	ID         MerchantID `json:"id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Confidence float64    `json:"confidence"`
	Matched    bool       `json:"matched"`
}

func NewEntityResult(id MerchantID, name string, confidence float64, matched bool) *EntityResult {
	return &EntityResult{ID: id, Name: name, Confidence: Clamp01(confidence), Matched: matched}
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
