package skill

import (
	"context"
	"sort"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const defaultCaseLimit = 3

// CaseSource provides reference cases.
type CaseSource interface {
	ListCases(ctx context.Context) ([]*model.Case, error)
}

type CaseMatch struct {
	Case  *model.Case `json:"case"`
	Score float64     `json:"score"` // share of the merchant's risks the case addresses
}

// CaseMatches is the data of a case_matching task.
type CaseMatches struct {
	Matches []CaseMatch `json:"matches"`
}

// CaseMatching ranks reference cases by how many of the merchant's risk
// codes they address. The "limit" param caps the number of matches.
type CaseMatching struct {
	source CaseSource
}

func NewCaseMatching(source CaseSource) *CaseMatching {
	return &CaseMatching{source: source}
}

func (*CaseMatching) Action() model.Action { return model.ActionCaseMatching }

func (x *CaseMatching) Run(ctx context.Context, in *Input) (any, error) {
	codes := riskCodes(ctx, in)
	if len(codes) == 0 {
		return &CaseMatches{Matches: []CaseMatch{}}, nil
	}

	cases, err := x.source.ListCases(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list reference cases")
	}

	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[string(c)] = true
	}

	var matches []CaseMatch
	for _, c := range cases {
		hit := 0
		for _, s := range c.Signals {
			if wanted[s] {
				hit++
			}
		}
		if hit > 0 {
			matches = append(matches, CaseMatch{Case: c, Score: float64(hit) / float64(len(wanted))})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if limit := intParam(in.Params, "limit", defaultCaseLimit); limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []CaseMatch{}
	}
	return &CaseMatches{Matches: matches}, nil
}

// riskCodes collects risk codes from a diagnosis or risk report upstream,
// or evaluates the merchant when neither is available.
func riskCodes(ctx context.Context, in *Input) []RiskCode {
	if d, ok := FindData[*Diagnosis](in.Dependencies); ok {
		return d.Codes()
	}
	if r, ok := FindData[*RiskReport](in.Dependencies); ok {
		return r.Codes()
	}
	if in.Merchant == nil {
		return nil
	}
	data, err := RiskDetection{}.Run(ctx, in)
	if err != nil {
		return nil
	}
	return data.(*RiskReport).Codes()
}
