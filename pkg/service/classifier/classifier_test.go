package classifier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/service/classifier"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

// mockGemini is a mock implementation of adapter.Gemini for testing
type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return nil, errors.New("not implemented")
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}
}

func TestKeyword(t *testing.T) {
	testCases := []struct {
		query      string
		intent     model.Intent
		confidence float64
	}{
		{query: "海底捞火锅最近怎么样", intent: model.IntentHealthCheck, confidence: 0.6},
		{query: "海底捞火锅有什么风险", intent: model.IntentRiskQuery, confidence: 0.6},
		{query: "海底捞火锅为什么营收下滑", intent: model.IntentDiagnosis, confidence: 0.7},
		{query: "老王面馆怎么办，有什么建议", intent: model.IntentSolution, confidence: 0.7},
		{query: "高风险商户有几个", intent: model.IntentAggregation, confidence: 0.6},
		{query: "营收最高的商户排名", intent: model.IntentAggregation, confidence: 0.7},
		{query: "你好", intent: model.IntentGeneral, confidence: 0.2},
	}

	k := classifier.NewKeyword()
	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			got := gt.R1(k.Classify(context.Background(), tc.query, nil)).NoError(t)
			gt.Equal(t, got.Intent, tc.intent)
			gt.True(t, got.Confidence > tc.confidence-1e-9 && got.Confidence < tc.confidence+1e-9)
		})
	}
}

func TestKeywordFollowUp(t *testing.T) {
	convCtx := model.NewConversationContext(0)
	convCtx.SetSubject("m001", "海底捞火锅")
	convCtx.LastIntent = model.IntentRiskQuery

	got := gt.R1(classifier.NewKeyword().Classify(context.Background(), "海底捞火锅呢", convCtx)).NoError(t)
	gt.Equal(t, got.Intent, model.IntentRiskQuery)
	gt.Equal(t, got.Confidence, 0.4)
	gt.True(t, got.FromContext)
}

func TestKeywordTie(t *testing.T) {
	// "风险" and "原因" are both two characters
	got := gt.R1(classifier.NewKeyword().Classify(context.Background(), "风险原因", nil)).NoError(t)
	gt.Equal(t, got.Confidence, 0.45)
}

func TestGemini(t *testing.T) {
	var captured *genai.GenerateContentConfig
	var prompt string
	mock := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			captured = config
			prompt = contents[0].Parts[0].Text
			return textResponse(`{"intent":"diagnosis","confidence":0.85}`), nil
		},
	}

	convCtx := model.NewConversationContext(0)
	convCtx.SetSubject("m001", "海底捞火锅")
	convCtx.AddMessage(model.RoleUser, "海底捞火锅最近怎么样")

	got := gt.R1(classifier.NewGemini(mock).Classify(context.Background(), "海底捞火锅为什么下滑", convCtx)).NoError(t)
	gt.Equal(t, got.Intent, model.IntentDiagnosis)
	gt.Equal(t, got.Confidence, 0.85)
	gt.False(t, got.FromContext)

	gt.Equal(t, captured.ResponseMIMEType, "application/json")
	gt.A(t, captured.ResponseSchema.Properties["intent"].Enum).Length(len(model.Intents))
	gt.S(t, prompt).Contains("海底捞火锅为什么下滑")
	gt.S(t, prompt).Contains(`"海底捞火锅"`)
	gt.S(t, prompt).Contains("user: 海底捞火锅最近怎么样")
}

func TestGeminiErrors(t *testing.T) {
	testCases := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
	}{
		{name: "api error", err: errors.New("quota exceeded")},
		{name: "empty response", resp: &genai.GenerateContentResponse{}},
		{name: "broken json", resp: textResponse(`{"intent":`)},
		{name: "unknown intent", resp: textResponse(`{"intent":"weather","confidence":0.9}`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockGemini{
				generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
					return tc.resp, tc.err
				},
			}
			_, err := classifier.NewGemini(mock).Classify(context.Background(), "海底捞火锅", nil)
			gt.Error(t, err)
		})
	}
}

func TestGeminiFromContext(t *testing.T) {
	mock := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(`{"intent":"risk_query","confidence":0.6,"from_context":true}`), nil
		},
	}

	got := gt.R1(classifier.NewGemini(mock).Classify(context.Background(), "那它呢", nil)).NoError(t)
	gt.Equal(t, got.Intent, model.IntentRiskQuery)
	gt.True(t, got.FromContext)
}

func TestGeminiClampsConfidence(t *testing.T) {
	mock := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(`{"intent":"aggregation","confidence":1.7}`), nil
		},
	}
	got := gt.R1(classifier.NewGemini(mock).Classify(context.Background(), "有几个", nil)).NoError(t)
	gt.Equal(t, got.Confidence, 1.0)
}

func TestFallback(t *testing.T) {
	failing := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("unavailable")
		},
	}

	c := &classifier.Fallback{
		Primary:   classifier.NewGemini(failing),
		Secondary: classifier.NewKeyword(),
	}
	got := gt.R1(c.Classify(context.Background(), "海底捞火锅有什么风险", nil)).NoError(t)
	gt.Equal(t, got.Intent, model.IntentRiskQuery)
}
