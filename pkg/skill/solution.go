package skill

import (
	"context"

	"github.com/m-mizutani/dashchat/pkg/model"
)

type Solution struct {
	Title  string       `json:"title"`
	Detail string       `json:"detail"`
	CaseID model.CaseID `json:"case_id,omitempty"` // set when derived from a reference case
}

// SolutionPlan is the data of a solution_synthesis task. BasedOnCases is
// false when no reference case contributed, so callers can disclose that
// the advice is generic.
type SolutionPlan struct {
	MerchantID   model.MerchantID `json:"merchant_id"`
	Solutions    []Solution       `json:"solutions"`
	BasedOnCases bool             `json:"based_on_cases"`
}

var genericSolutions = map[RiskCode]Solution{
	RiskRevenueDecline:  {Title: "拉动营收", Detail: "结合时段分析推出限时优惠，提升复购和客单价"},
	RiskHighComplaint:   {Title: "处理投诉", Detail: "梳理近期投诉主题，针对高频问题整改并回访用户"},
	RiskHighRefund:      {Title: "降低退款", Detail: "排查退款原因，优化出餐与配送环节"},
	RiskLowRating:       {Title: "提升评分", Detail: "改善服务细节，邀请满意用户评价"},
	RiskPaymentInactive: {Title: "确认经营状态", Detail: "联系商户确认是否停业，必要时安排运营回访"},
}

// SolutionSynthesis combines matched cases and diagnosed causes into
// suggested actions. Reference cases come first.
type SolutionSynthesis struct{}

func (SolutionSynthesis) Action() model.Action { return model.ActionSolutionSynthesis }

func (SolutionSynthesis) Run(ctx context.Context, in *Input) (any, error) {
	if in.Merchant == nil {
		return nil, ErrMerchantRequired
	}

	plan := &SolutionPlan{MerchantID: in.Merchant.ID, Solutions: []Solution{}}

	if matches, ok := FindData[*CaseMatches](in.Dependencies); ok {
		for _, m := range matches.Matches {
			plan.Solutions = append(plan.Solutions, Solution{
				Title:  m.Case.Title,
				Detail: m.Case.Action,
				CaseID: m.Case.ID,
			})
		}
		plan.BasedOnCases = len(matches.Matches) > 0
	}

	for _, code := range riskCodes(ctx, in) {
		if s, ok := genericSolutions[code]; ok {
			plan.Solutions = append(plan.Solutions, s)
		}
	}

	return plan, nil
}

// Defaults returns the built-in skills. Case matching reads from cases.
func Defaults(cases CaseSource) []Skill {
	return []Skill{
		Health{},
		RiskDetection{},
		DiagnosisSkill{},
		NewCaseMatching(cases),
		SolutionSynthesis{},
	}
}
