package chat

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/m-mizutani/dashchat/pkg/adapter"
	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/skill"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

//go:embed prompt/respond.md
var respondPromptRaw string

var respondPromptTmpl = template.Must(template.New("respond").Parse(respondPromptRaw))

// ResponseInput is what a Responder may use to answer. Merchant is nil when
// no merchant was resolved; Aggregate is set only for aggregation questions.
type ResponseInput struct {
	Query     string
	Intent    model.Intent
	Merchant  *model.Merchant
	Results   []*model.SkillResult
	Aggregate *Aggregate
	Messages  []model.Message
}

// Responder turns analysis results into the reply text.
type Responder interface {
	Respond(ctx context.Context, in *ResponseInput) (string, error)
}

// TemplateResponder answers with Summarize and never fails.
type TemplateResponder struct{}

func (TemplateResponder) Respond(ctx context.Context, in *ResponseInput) (string, error) {
	return Summarize(in), nil
}

// GeminiResponder writes the reply with an LLM.
type GeminiResponder struct {
	gemini adapter.Gemini
}

func NewGeminiResponder(gemini adapter.Gemini) *GeminiResponder {
	return &GeminiResponder{gemini: gemini}
}

func (r *GeminiResponder) Respond(ctx context.Context, in *ResponseInput) (string, error) {
	payload := map[string]any{"results": in.Results}
	if in.Aggregate != nil {
		payload["aggregate"] = in.Aggregate
	}
	results, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal analysis results")
	}

	params := map[string]any{
		"Query":   in.Query,
		"Intent":  string(in.Intent),
		"Results": string(results),
	}
	if in.Merchant != nil {
		params["Merchant"] = in.Merchant.Name
	}

	var buf bytes.Buffer
	if err := respondPromptTmpl.Execute(&buf, params); err != nil {
		return "", goerr.Wrap(err, "failed to execute respond prompt template")
	}

	contents := make([]*genai.Content, 0, len(in.Messages)+1)
	for _, msg := range in.Messages {
		role := genai.RoleUser
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(buf.String(), genai.RoleUser))

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: &thinkingBudget},
	}

	resp, err := r.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate response")
	}
	text, err := adapter.ResponseText(resp)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate response")
	}
	return text, nil
}

var levelLabels = map[skill.Level]string{
	skill.LevelHealthy:  "健康",
	skill.LevelWarning:  "预警",
	skill.LevelCritical: "高风险",
}

// Summarize renders results as plain sentences. It is used when no LLM is
// configured or the LLM call fails.
func Summarize(in *ResponseInput) string {
	switch {
	case in.Intent == model.IntentAggregation && in.Aggregate != nil:
		return summarizeAggregate(in.Aggregate)
	case in.Intent.NeedsSubject() && in.Merchant == nil:
		return "请问你想了解哪家商户？"
	case len(in.Results) == 0:
		return "我可以帮你查看商户的健康状况、风险、问题原因和改进建议，也可以统计整体经营情况。请告诉我想了解哪家商户。"
	}

	var lines []string
	for _, r := range in.Results {
		if !r.Success {
			lines = append(lines, fmt.Sprintf("%s 暂时无法获取。", actionLabel(r.Action)))
			continue
		}
		if line := summarizeData(in.Merchant, r.Data); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func summarizeData(m *model.Merchant, data any) string {
	name := ""
	if m != nil {
		name = m.Name
	}

	switch v := data.(type) {
	case *skill.HealthReport:
		return fmt.Sprintf("%s健康评分 %d 分，状态：%s。", name, v.Score, levelLabels[v.Level])

	case *skill.RiskReport:
		if len(v.Risks) == 0 {
			return name + "未发现明显风险。"
		}
		parts := make([]string, 0, len(v.Risks))
		for _, risk := range v.Risks {
			parts = append(parts, fmt.Sprintf("%s（%s）", risk.Description, levelLabels[risk.Level]))
		}
		return name + "存在以下风险：" + strings.Join(parts, "、") + "。"

	case *skill.Diagnosis:
		line := v.Summary + "。"
		if v.Partial {
			line += "部分数据缺失，分析可能不完整。"
		}
		return line

	case *skill.CaseMatches:
		if len(v.Matches) == 0 {
			return ""
		}
		titles := make([]string, 0, len(v.Matches))
		for _, match := range v.Matches {
			titles = append(titles, "「"+match.Case.Title+"」")
		}
		return "参考案例：" + strings.Join(titles, "、") + "。"

	case *skill.SolutionPlan:
		if len(v.Solutions) == 0 {
			return "暂无针对性建议。"
		}
		parts := make([]string, 0, len(v.Solutions))
		for i, s := range v.Solutions {
			parts = append(parts, fmt.Sprintf("%d. %s：%s", i+1, s.Title, s.Detail))
		}
		return "建议：\n" + strings.Join(parts, "\n")
	}
	return ""
}

func summarizeAggregate(a *Aggregate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "共有 %d 家商户，其中健康 %d 家、预警 %d 家、高风险 %d 家。",
		a.Total, a.ByLevel[skill.LevelHealthy], a.ByLevel[skill.LevelWarning], a.ByLevel[skill.LevelCritical])
	if len(a.HighRisk) > 0 {
		fmt.Fprintf(&b, "\n高风险商户：%s。", strings.Join(a.HighRisk, "、"))
	}
	if len(a.TopByRevenue) > 0 {
		fmt.Fprintf(&b, "\n月营收靠前：%s。", strings.Join(a.TopByRevenue, "、"))
	}
	return b.String()
}

func actionLabel(action model.Action) string {
	switch action {
	case model.ActionHealthAnalysis:
		return "健康分析"
	case model.ActionRiskDetection:
		return "风险检测"
	case model.ActionDiagnosis:
		return "问题诊断"
	case model.ActionCaseMatching:
		return "案例匹配"
	case model.ActionSolutionSynthesis:
		return "方案生成"
	default:
		return string(action)
	}
}
