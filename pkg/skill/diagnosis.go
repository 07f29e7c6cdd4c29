package skill

import (
	"context"
	"sort"
	"strings"

	"github.com/m-mizutani/dashchat/pkg/model"
)

type Cause struct {
	Code        RiskCode `json:"code"`
	Level       Level    `json:"level"`
	Explanation string   `json:"explanation"`
}

// Diagnosis is the data of a diagnosis task. Partial is set when one of
// the upstream analyses failed and the diagnosis was built without it.
type Diagnosis struct {
	MerchantID model.MerchantID `json:"merchant_id"`
	Summary    string           `json:"summary"`
	Causes     []Cause          `json:"causes"`
	Partial    bool             `json:"partial"`
	Missing    []model.TaskID   `json:"missing,omitempty"`
}

// Codes returns the risk code of every cause.
func (d *Diagnosis) Codes() []RiskCode {
	codes := make([]RiskCode, 0, len(d.Causes))
	for _, c := range d.Causes {
		codes = append(codes, c.Code)
	}
	return codes
}

var causeExplanations = map[RiskCode]string{
	RiskRevenueDecline:  "订单量或客单价下降导致营收下滑",
	RiskHighComplaint:   "服务或商品质量问题引发较多投诉",
	RiskHighRefund:      "履约或品质问题导致退款增加",
	RiskLowRating:       "用户体验不佳拉低了评分",
	RiskPaymentInactive: "近期缺少交易，可能已停业或迁移",
}

// levelRank orders causes from most to least severe.
var levelRank = map[Level]int{LevelCritical: 0, LevelWarning: 1, LevelHealthy: 2}

// DiagnosisSkill explains the risks found by upstream tasks. Without a
// risk report it falls back to evaluating the merchant directly.
type DiagnosisSkill struct{}

func (DiagnosisSkill) Action() model.Action { return model.ActionDiagnosis }

func (DiagnosisSkill) Run(ctx context.Context, in *Input) (any, error) {
	if in.Merchant == nil {
		return nil, ErrMerchantRequired
	}

	report, ok := FindData[*RiskReport](in.Dependencies)
	if !ok {
		data, err := RiskDetection{}.Run(ctx, in)
		if err != nil {
			return nil, err
		}
		report = data.(*RiskReport)
	}

	d := &Diagnosis{
		MerchantID: in.Merchant.ID,
		Causes:     []Cause{},
		Missing:    failedDependencies(in.Dependencies),
	}
	d.Partial = len(d.Missing) > 0
	sort.Slice(d.Missing, func(i, j int) bool { return d.Missing[i] < d.Missing[j] })

	for _, r := range report.Risks {
		d.Causes = append(d.Causes, Cause{
			Code:        r.Code,
			Level:       r.Level,
			Explanation: causeExplanations[r.Code],
		})
	}
	sort.SliceStable(d.Causes, func(i, j int) bool {
		return levelRank[d.Causes[i].Level] < levelRank[d.Causes[j].Level]
	})

	d.Summary = summarize(in.Merchant.Name, d.Causes)
	if health, ok := FindData[*HealthReport](in.Dependencies); ok && health.Level == LevelHealthy && len(d.Causes) == 0 {
		d.Summary = in.Merchant.Name + "经营状况良好，未发现明显问题"
	}

	return d, nil
}

func summarize(name string, causes []Cause) string {
	if len(causes) == 0 {
		return name + "未发现明显问题"
	}
	parts := make([]string, 0, len(causes))
	for _, c := range causes {
		parts = append(parts, c.Explanation)
	}
	return name + "的主要问题：" + strings.Join(parts, "；")
}
