package classifier

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/dashchat/pkg/model"
)

const (
	keywordBaseConfidence = 0.6
	keywordHitBonus       = 0.1
	keywordMaxConfidence  = 0.9
	// tieConfidence is used when two intents match equally well.
	tieConfidence = 0.45
	// followUpConfidence is used when nothing matched but the previous
	// turn's intent can be carried over.
	followUpConfidence = 0.4
	// noMatchConfidence is low enough to be reported as ambiguous.
	noMatchConfidence = 0.2
)

type intentRule struct {
	intent   model.Intent
	keywords []string
}

// intentRules are scored by the total length of matched keywords, so a
// specific phrase such as "如何提升" outweighs the generic "如何".
var intentRules = []intentRule{
	{
		intent: model.IntentHealthCheck,
		keywords: []string{
			"怎么样", "如何", "经营状况", "健康", "表现", "情况", "营收", "状况", "好不好",
			"how is", "doing", "performance",
		},
	},
	{
		intent: model.IntentRiskQuery,
		keywords: []string{
			"风险", "预警", "异常", "隐患", "危险",
			"risk", "warning",
		},
	},
	{
		intent: model.IntentDiagnosis,
		keywords: []string{
			"为什么", "原因", "问题", "下滑", "下降", "诊断", "怎么回事",
			"why", "cause", "problem",
		},
	},
	{
		intent: model.IntentSolution,
		keywords: []string{
			"怎么办", "建议", "如何提升", "如何改善", "方案", "对策", "改进", "解决", "提高",
			"improve", "suggest", "what should",
		},
	},
	{
		intent: model.IntentAggregation,
		keywords: []string{
			"有几个", "有几家", "多少个", "多少家", "哪些商户", "哪几家", "排名", "最高", "最低",
			"前十", "统计", "总共", "所有商户", "平均",
			"how many", "top", "rank", "average",
		},
	},
}

// Keyword classifies by keyword tables. It needs no external service and
// serves as the fallback for the LLM classifier.
type Keyword struct{}

func NewKeyword() *Keyword {
	return &Keyword{}
}

func (k *Keyword) Classify(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error) {
	lowered := strings.ToLower(query)

	best := model.IntentGeneral
	bestScore, secondScore, bestHits := 0, 0, 0

	for _, rule := range intentRules {
		score, hits := 0, 0
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				score += utf8.RuneCountInString(kw)
				hits++
			}
		}
		switch {
		case score > bestScore:
			secondScore = bestScore
			best, bestScore, bestHits = rule.intent, score, hits
		case score > secondScore:
			secondScore = score
		}
	}

	if bestScore == 0 {
		if convCtx != nil && convCtx.LastIntent != "" && convCtx.HasSubject() {
			result := model.NewIntentResult(convCtx.LastIntent, followUpConfidence)
			result.FromContext = true
			return result, nil
		}
		return model.NewIntentResult(model.IntentGeneral, noMatchConfidence), nil
	}
	if bestScore == secondScore {
		return model.NewIntentResult(best, tieConfidence), nil
	}

	conf := keywordBaseConfidence + keywordHitBonus*float64(bestHits-1)
	if conf > keywordMaxConfidence {
		conf = keywordMaxConfidence
	}
	return model.NewIntentResult(best, conf), nil
}
