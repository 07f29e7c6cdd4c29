package chat

import (
	"context"
	"sort"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/skill"
	"github.com/m-mizutani/goerr/v2"
)

const topMerchantLimit = 5

// Aggregate summarizes the whole catalog for aggregation questions such as
// "how many merchants are at risk".
type Aggregate struct {
	Total        int                 `json:"total"`
	ByLevel      map[skill.Level]int `json:"by_level"`
	HighRisk     []string            `json:"high_risk"`
	TopByRevenue []string            `json:"top_by_revenue"`
}

// Names returns every merchant name mentioned in a.
func (a *Aggregate) Names() []string {
	if a == nil {
		return nil
	}
	names := append([]string(nil), a.HighRisk...)
	return append(names, a.TopByRevenue...)
}

func aggregate(ctx context.Context, merchants []*model.Merchant) (*Aggregate, error) {
	agg := &Aggregate{
		Total:        len(merchants),
		ByLevel:      map[skill.Level]int{},
		HighRisk:     []string{},
		TopByRevenue: []string{},
	}

	for _, m := range merchants {
		data, err := skill.Health{}.Run(ctx, &skill.Input{Merchant: m})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to grade merchant", goerr.V("merchant_id", m.ID))
		}
		report := data.(*skill.HealthReport)
		agg.ByLevel[report.Level]++
		if report.Level == skill.LevelCritical {
			agg.HighRisk = append(agg.HighRisk, m.Name)
		}
	}

	sorted := append([]*model.Merchant(nil), merchants...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Metrics.MonthlyRevenue > sorted[j].Metrics.MonthlyRevenue
	})
	for i, m := range sorted {
		if i >= topMerchantLimit {
			break
		}
		agg.TopByRevenue = append(agg.TopByRevenue, m.Name)
	}

	return agg, nil
}
