package skill

import (
	"context"

	"github.com/m-mizutani/dashchat/pkg/model"
)

type RiskCode string

const (
	RiskRevenueDecline  RiskCode = "revenue_decline"
	RiskHighComplaint   RiskCode = "high_complaint"
	RiskHighRefund      RiskCode = "high_refund"
	RiskLowRating       RiskCode = "low_rating"
	RiskPaymentInactive RiskCode = "payment_inactive"
)

type Risk struct {
	Code        RiskCode `json:"code"`
	Level       Level    `json:"level"`
	Description string   `json:"description"`
}

// RiskReport is the data of a risk_detection task.
type RiskReport struct {
	MerchantID model.MerchantID `json:"merchant_id"`
	Risks      []Risk           `json:"risks"`
}

// Codes returns the code of every detected risk.
func (r *RiskReport) Codes() []RiskCode {
	codes := make([]RiskCode, 0, len(r.Risks))
	for _, risk := range r.Risks {
		codes = append(codes, risk.Code)
	}
	return codes
}

type riskRule struct {
	code        RiskCode
	description string
	level       func(m model.Metrics) Level
}

var riskRules = []riskRule{
	{
		code:        RiskRevenueDecline,
		description: "营收环比下滑",
		level:       func(m model.Metrics) Level { return grade(m.RevenueGrowth, -0.1, -0.2, false) },
	},
	{
		code:        RiskHighComplaint,
		description: "投诉率偏高",
		level:       func(m model.Metrics) Level { return grade(m.ComplaintRate, 0.03, 0.05, true) },
	},
	{
		code:        RiskHighRefund,
		description: "退款率偏高",
		level:       func(m model.Metrics) Level { return grade(m.RefundRate, 0.05, 0.1, true) },
	},
	{
		code:        RiskLowRating,
		description: "用户评分偏低",
		level:       func(m model.Metrics) Level { return grade(m.Rating, 4.0, 3.5, false) },
	},
	{
		code:        RiskPaymentInactive,
		description: "长时间无交易",
		level:       func(m model.Metrics) Level { return grade(float64(m.DaysSinceLastPay), 14, 30, true) },
	},
}

// RiskDetection reports every metric outside its healthy range.
type RiskDetection struct{}

func (RiskDetection) Action() model.Action { return model.ActionRiskDetection }

func (RiskDetection) Run(ctx context.Context, in *Input) (any, error) {
	if in.Merchant == nil {
		return nil, ErrMerchantRequired
	}

	report := &RiskReport{MerchantID: in.Merchant.ID, Risks: []Risk{}}
	for _, rule := range riskRules {
		if level := rule.level(in.Merchant.Metrics); level != LevelHealthy {
			report.Risks = append(report.Risks, Risk{
				Code:        rule.code,
				Level:       level,
				Description: rule.description,
			})
		}
	}
	return report, nil
}
