package confidence

import (
	"fmt"

	"github.com/m-mizutani/dashchat/pkg/model"
)

// Weights of each stage in the overall score. Entity extraction carries the
// most weight because a wrong subject makes the whole answer wrong.
type Weights struct {
	QueryUnderstanding   float64
	IntentClassification float64
	EntityExtraction     float64
	TaskPlanning         float64
	Execution            float64
}

var DefaultWeights = Weights{
	QueryUnderstanding:   0.15,
	IntentClassification: 0.25,
	EntityExtraction:     0.30,
	TaskPlanning:         0.15,
	Execution:            0.15,
}

// Config holds the thresholds of the evaluator. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	Weights Weights

	// LowScore is the stage confidence under which an ambiguity is reported.
	LowScore float64
	// MaxOperations is the number of rewrite operations above which the
	// rewrite itself is reported as ambiguous.
	MaxOperations int
	// ConfirmationThreshold is the overall score under which a turn with
	// at least one ambiguity asks the user to confirm.
	ConfirmationThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Weights:               DefaultWeights,
		LowScore:              0.3,
		MaxOperations:         8,
		ConfirmationThreshold: 0.5,
	}
}

type Evaluator struct {
	cfg Config
}

func New(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate combines the confidence of every stage of a turn. A nil stage
// scores zero, except that missing results mean nothing was executed and
// score 1.0.
func (e *Evaluator) Evaluate(
	rewrite *model.RewriteResult,
	intent *model.IntentResult,
	entity *model.EntityResult,
	plan *model.ExecutionPlan,
	results []*model.SkillResult,
) *model.ConfidenceScore {
	b := model.ConfidenceBreakdown{Execution: executionScore(results)}
	if rewrite != nil {
		b.QueryUnderstanding = model.Clamp01(rewrite.Confidence)
	}
	if intent != nil {
		b.IntentClassification = model.Clamp01(intent.Confidence)
	}
	if entity != nil {
		b.EntityExtraction = model.Clamp01(entity.Confidence)
	}
	if plan != nil {
		b.TaskPlanning = model.Clamp01(plan.Confidence)
	}

	w := e.cfg.Weights
	overall := model.Clamp01(b.QueryUnderstanding*w.QueryUnderstanding +
		b.IntentClassification*w.IntentClassification +
		b.EntityExtraction*w.EntityExtraction +
		b.TaskPlanning*w.TaskPlanning +
		b.Execution*w.Execution)

	ambiguities := e.ambiguities(rewrite, intent, entity)

	return &model.ConfidenceScore{
		Overall:           overall,
		Breakdown:         b,
		NeedsConfirmation: overall < e.cfg.ConfirmationThreshold && len(ambiguities) > 0,
		Ambiguities:       ambiguities,
	}
}

func executionScore(results []*model.SkillResult) float64 {
	if len(results) == 0 {
		return 1.0
	}
	success := 0
	for _, r := range results {
		if r != nil && r.Success {
			success++
		}
	}
	return float64(success) / float64(len(results))
}

func (e *Evaluator) ambiguities(rewrite *model.RewriteResult, intent *model.IntentResult, entity *model.EntityResult) []string {
	ambiguities := []string{}
	low := e.cfg.LowScore

	if rewrite != nil && rewrite.Confidence < low {
		ambiguities = append(ambiguities, "问题表述不够清晰")
	}
	if intent != nil && intent.Confidence < low {
		ambiguities = append(ambiguities, "无法确定您想了解的内容")
	}
	if entity != nil && entity.Matched && entity.Confidence < low {
		ambiguities = append(ambiguities, fmt.Sprintf("不确定您指的是否为「%s」", entity.Name))
	}
	if rewrite != nil && len(rewrite.Operations) > e.cfg.MaxOperations {
		ambiguities = append(ambiguities, "问题经过了较多改写，理解可能有偏差")
	}
	if rewrite.HasReference() && rewrite.Confidence < low {
		ambiguities = append(ambiguities, "指代对象不明确")
	}

	return ambiguities
}
