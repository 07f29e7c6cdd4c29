package skill

import (
	"context"

	"github.com/m-mizutani/dashchat/pkg/model"
)

type Level string

const (
	LevelHealthy  Level = "healthy"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

type Indicator struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Status Level   `json:"status"`
}

// HealthReport is the data of a health_analysis task.
type HealthReport struct {
	MerchantID model.MerchantID `json:"merchant_id"`
	Score      int              `json:"score"` // 0..100
	Level      Level            `json:"level"`
	Indicators []Indicator      `json:"indicators"`
}

// Health scores a merchant from its metrics snapshot.
type Health struct{}

func (Health) Action() model.Action { return model.ActionHealthAnalysis }

func (Health) Run(ctx context.Context, in *Input) (any, error) {
	if in.Merchant == nil {
		return nil, ErrMerchantRequired
	}
	m := in.Merchant.Metrics

	indicators := []Indicator{
		{Name: "revenue_growth", Value: m.RevenueGrowth, Status: grade(m.RevenueGrowth, -0.1, -0.2, false)},
		{Name: "rating", Value: m.Rating, Status: grade(m.Rating, 4.0, 3.5, false)},
		{Name: "complaint_rate", Value: m.ComplaintRate, Status: grade(m.ComplaintRate, 0.03, 0.05, true)},
		{Name: "refund_rate", Value: m.RefundRate, Status: grade(m.RefundRate, 0.05, 0.1, true)},
		{Name: "days_since_last_pay", Value: float64(m.DaysSinceLastPay), Status: grade(float64(m.DaysSinceLastPay), 14, 30, true)},
	}

	score := 100
	for _, ind := range indicators {
		switch ind.Status {
		case LevelWarning:
			score -= 10
		case LevelCritical:
			score -= 25
		}
	}
	if score < 0 {
		score = 0
	}

	level := LevelHealthy
	switch {
	case score < 60:
		level = LevelCritical
	case score < 80:
		level = LevelWarning
	}

	return &HealthReport{
		MerchantID: in.Merchant.ID,
		Score:      score,
		Level:      level,
		Indicators: indicators,
	}, nil
}

// grade rates v against a warning and a critical bound. When higherIsWorse
// is false, values below the bounds are bad.
func grade(v, warn, critical float64, higherIsWorse bool) Level {
	if higherIsWorse {
		switch {
		case v > critical:
			return LevelCritical
		case v > warn:
			return LevelWarning
		}
		return LevelHealthy
	}
	switch {
	case v < critical:
		return LevelCritical
	case v < warn:
		return LevelWarning
	}
	return LevelHealthy
}
