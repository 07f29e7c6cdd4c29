package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/repository"
	"github.com/m-mizutani/dashchat/pkg/service/executor"
	"github.com/m-mizutani/dashchat/pkg/service/validator"
	"github.com/m-mizutani/dashchat/pkg/skill"
	"github.com/m-mizutani/dashchat/pkg/usecase/chat"
	"github.com/m-mizutani/gt"
)

type mockClassifier struct {
	classifyFunc func(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error)
	calls        int
}

func (m *mockClassifier) Classify(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error) {
	m.calls++
	return m.classifyFunc(ctx, query, convCtx)
}

type mockResponder struct {
	respondFunc func(ctx context.Context, in *chat.ResponseInput) (string, error)
}

func (m *mockResponder) Respond(ctx context.Context, in *chat.ResponseInput) (string, error) {
	return m.respondFunc(ctx, in)
}

type mockSkill struct {
	action  model.Action
	runFunc func(ctx context.Context, in *skill.Input) (any, error)
}

func (m *mockSkill) Action() model.Action { return m.action }

func (m *mockSkill) Run(ctx context.Context, in *skill.Input) (any, error) {
	return m.runFunc(ctx, in)
}

func newRepo(t *testing.T) *repository.Memory {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemory()

	merchants := []*model.Merchant{
		{
			ID: "m001", Name: "老王面馆", Category: "餐饮",
			Metrics: model.Metrics{
				MonthlyRevenue: 80000, RevenueGrowth: -0.3, OrderCount: 1200,
				Rating: 3.2, ComplaintRate: 0.06, RefundRate: 0.02, DaysSinceLastPay: 1,
			},
		},
		{
			ID: "m002", Name: "小李咖啡", Category: "饮品",
			Metrics: model.Metrics{
				MonthlyRevenue: 150000, RevenueGrowth: 0.1, OrderCount: 5000,
				Rating: 4.7, ComplaintRate: 0.01, RefundRate: 0.01,
			},
		},
		{
			ID: "m003", Name: "阿强烧烤", Category: "餐饮",
			Metrics: model.Metrics{
				MonthlyRevenue: 60000, RevenueGrowth: -0.15, OrderCount: 900,
				Rating: 3.8, ComplaintRate: 0.04, RefundRate: 0.02, DaysSinceLastPay: 2,
			},
		},
	}
	for _, m := range merchants {
		gt.NoError(t, repo.PutMerchant(ctx, m))
	}
	gt.NoError(t, repo.PutCase(ctx, &model.Case{
		ID:      "c001",
		Title:   "社区面馆差评整改",
		Signals: []string{"revenue_decline", "high_complaint"},
		Action:  "针对差评集中的出餐速度问题调整备餐流程",
		Outcome: "三个月内评分回升到 4.3",
	}))
	return repo
}

func newPipeline(t *testing.T, input chat.PipelineInput) *chat.Pipeline {
	t.Helper()
	if input.Repo == nil {
		input.Repo = newRepo(t)
	}
	return gt.R1(chat.NewPipeline(input)).NoError(t)
}

func TestProcessTurnHealthCheck(t *testing.T) {
	p := newPipeline(t, chat.PipelineInput{})
	convCtx := model.NewConversationContext(0)

	result := gt.R1(p.ProcessTurn(context.Background(), "老王面馆经营状况怎么样", convCtx)).NoError(t)

	gt.True(t, result.Boundary.Allowed)
	gt.True(t, result.Switch.ShouldSwitch)
	gt.Equal(t, result.Switch.TargetID, model.MerchantID("m001"))
	gt.Equal(t, result.Intent.Intent, model.IntentHealthCheck)
	gt.True(t, result.Entity.Matched)
	gt.Equal(t, result.Entity.ID, model.MerchantID("m001"))
	gt.A(t, result.Plan.Tasks).Length(1)
	gt.A(t, result.Results).Length(1)
	gt.True(t, result.Results[0].Success)
	gt.False(t, result.Confidence.NeedsConfirmation)
	gt.True(t, result.Confidence.Overall > 0.8)
	gt.S(t, result.Response).Contains("老王面馆健康评分")
	gt.False(t, result.CacheHit)

	// The pipeline reads the context but never writes it.
	gt.False(t, convCtx.HasSubject())
	gt.A(t, convCtx.Messages).Length(0)
}

func TestProcessTurnBlocked(t *testing.T) {
	classify := &mockClassifier{
		classifyFunc: func(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error) {
			t.Error("classifier must not run for a refused input")
			return nil, errors.New("unexpected")
		},
	}
	p := newPipeline(t, chat.PipelineInput{Classifier: classify})

	result := gt.R1(p.ProcessTurn(context.Background(), "删除老王面馆的数据", model.NewConversationContext(0))).NoError(t)

	gt.True(t, result.Blocked())
	gt.S(t, result.Response).Contains("不能修改商户数据")
	gt.S(t, result.Response).Contains("商户管理页面")
	gt.True(t, result.Confidence == nil)
	gt.True(t, result.Intent == nil)
	gt.True(t, result.Switch == nil)
	gt.Equal(t, classify.calls, 0)
}

func TestProcessTurnCache(t *testing.T) {
	classify := &mockClassifier{
		classifyFunc: func(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error) {
			return model.NewIntentResult(model.IntentHealthCheck, 0.9), nil
		},
	}
	p := newPipeline(t, chat.PipelineInput{Classifier: classify})
	ctx := context.Background()

	first := gt.R1(p.ProcessTurn(ctx, "老王面馆经营状况怎么样", model.NewConversationContext(0))).NoError(t)
	second := gt.R1(p.ProcessTurn(ctx, "老王面馆经营状况怎么样？", model.NewConversationContext(0))).NoError(t)

	gt.False(t, first.CacheHit)
	gt.True(t, second.CacheHit)
	gt.Equal(t, second.Intent.Intent, model.IntentHealthCheck)
	gt.Equal(t, classify.calls, 1)
	gt.Equal(t, p.CacheStats().Size, 1)
	gt.NotEqual(t, first.TurnID, second.TurnID)
}

func TestProcessTurnFollowUpNotCached(t *testing.T) {
	p := newPipeline(t, chat.PipelineInput{})
	ctx := context.Background()

	afterRisk := model.NewConversationContext(0)
	afterRisk.SetSubject("m001", "老王面馆")
	afterRisk.LastIntent = model.IntentRiskQuery

	afterHealth := model.NewConversationContext(0)
	afterHealth.SetSubject("m001", "老王面馆")
	afterHealth.LastIntent = model.IntentHealthCheck

	first := gt.R1(p.ProcessTurn(ctx, "老王面馆呢", afterRisk)).NoError(t)
	second := gt.R1(p.ProcessTurn(ctx, "老王面馆呢", afterHealth)).NoError(t)

	gt.Equal(t, first.Intent.Intent, model.IntentRiskQuery)
	gt.True(t, first.Intent.FromContext)
	gt.False(t, second.CacheHit)
	gt.Equal(t, second.Intent.Intent, model.IntentHealthCheck)
	gt.Equal(t, p.CacheStats().Size, 0)
}

func TestProcessTurnClassifierError(t *testing.T) {
	classify := &mockClassifier{
		classifyFunc: func(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	p := newPipeline(t, chat.PipelineInput{Classifier: classify})

	_, err := p.ProcessTurn(context.Background(), "老王面馆经营状况怎么样", model.NewConversationContext(0))
	gt.Error(t, err)
	gt.Equal(t, p.CacheStats().Size, 0)
}

func TestProcessTurnConfirmation(t *testing.T) {
	responder := &mockResponder{
		respondFunc: func(ctx context.Context, in *chat.ResponseInput) (string, error) {
			t.Error("responder must not run when confirmation is needed")
			return "", nil
		},
	}
	p := newPipeline(t, chat.PipelineInput{Responder: responder})

	result := gt.R1(p.ProcessTurn(context.Background(), "嗯", model.NewConversationContext(0))).NoError(t)

	gt.Equal(t, result.Intent.Intent, model.IntentGeneral)
	gt.True(t, result.Confidence.NeedsConfirmation)
	gt.A(t, result.Confidence.Ambiguities).Length(1)
	gt.S(t, result.Response).Contains("我不太确定")
	gt.True(t, result.Uncertainty.NeedsHuman)
}

func TestProcessTurnAggregation(t *testing.T) {
	p := newPipeline(t, chat.PipelineInput{})

	result := gt.R1(p.ProcessTurn(context.Background(), "总共有多少家商户", model.NewConversationContext(0))).NoError(t)

	gt.Equal(t, result.Intent.Intent, model.IntentAggregation)
	gt.A(t, result.Plan.Tasks).Length(0)
	gt.A(t, result.Results).Length(0)
	gt.V(t, result.Aggregate).NotNil()
	gt.Equal(t, result.Aggregate.Total, 3)
	gt.V(t, result.Aggregate.HighRisk).Equal([]string{"老王面馆"})
	gt.V(t, result.Aggregate.TopByRevenue).Equal([]string{"小李咖啡", "老王面馆", "阿强烧烤"})
	gt.True(t, result.Validation.Aggregation.Valid)
	gt.S(t, result.Response).Contains("共有 3 家商户")
}

func TestProcessTurnAggregationFabrication(t *testing.T) {
	responder := &mockResponder{
		respondFunc: func(ctx context.Context, in *chat.ResponseInput) (string, error) {
			return "高风险商户包括老王面馆和张三火锅店", nil
		},
	}
	p := newPipeline(t, chat.PipelineInput{Responder: responder})

	result := gt.R1(p.ProcessTurn(context.Background(), "总共有多少家商户", model.NewConversationContext(0))).NoError(t)

	gt.False(t, result.Validation.Aggregation.Valid)
	gt.S(t, result.Response).NotContains("张三火锅店")
	gt.S(t, result.Response).Contains("老王面馆")
	gt.S(t, result.Response).Contains(validator.Placeholder)
}

func TestProcessTurnResponderFallback(t *testing.T) {
	responder := &mockResponder{
		respondFunc: func(ctx context.Context, in *chat.ResponseInput) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	p := newPipeline(t, chat.PipelineInput{Responder: responder})

	result := gt.R1(p.ProcessTurn(context.Background(), "老王面馆经营状况怎么样", model.NewConversationContext(0))).NoError(t)
	gt.S(t, result.Response).Contains("老王面馆健康评分")
}

func TestProcessTurnCitation(t *testing.T) {
	testCases := []struct {
		name       string
		response   string
		valid      bool
		disclosure bool
	}{
		{
			name:       "advice without case",
			response:   "建议推出限时优惠活动",
			valid:      false,
			disclosure: true,
		},
		{
			name:     "advice citing case",
			response: "参考案例「社区面馆差评整改」，建议调整备餐流程",
			valid:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			responder := &mockResponder{
				respondFunc: func(ctx context.Context, in *chat.ResponseInput) (string, error) {
					return tc.response, nil
				},
			}
			p := newPipeline(t, chat.PipelineInput{Responder: responder})

			result := gt.R1(p.ProcessTurn(context.Background(), "老王面馆怎么办，有什么建议", model.NewConversationContext(0))).NoError(t)

			gt.Equal(t, result.Intent.Intent, model.IntentSolution)
			gt.A(t, result.Plan.Tasks).Length(4)
			gt.Equal(t, result.Validation.Citation.Valid, tc.valid)
			if tc.disclosure {
				gt.S(t, result.Response).Contains(validator.Disclosure)
			} else {
				gt.S(t, result.Response).NotContains(validator.Disclosure)
			}
		})
	}
}

func TestProcessTurnFailedSkill(t *testing.T) {
	repo := newRepo(t)
	failing := &mockSkill{
		action: model.ActionRiskDetection,
		runFunc: func(ctx context.Context, in *skill.Input) (any, error) {
			return nil, errors.New("metrics backend down")
		},
	}
	registry := skill.NewRegistry(skill.WithSkills(skill.Defaults(repo)...), skill.WithSkill(failing))
	p := newPipeline(t, chat.PipelineInput{Repo: repo, Executor: executor.New(registry)})

	result := gt.R1(p.ProcessTurn(context.Background(), "老王面馆为什么营收下滑", model.NewConversationContext(0))).NoError(t)

	gt.Equal(t, result.Intent.Intent, model.IntentDiagnosis)
	gt.A(t, result.Results).Length(4)

	byTask := map[model.TaskID]*model.SkillResult{}
	for _, r := range result.Results {
		byTask[r.TaskID] = r
	}
	gt.False(t, byTask["risk"].Success)
	gt.True(t, byTask["diagnosis"].Success)
	gt.True(t, byTask["diagnosis"].Data.(*skill.Diagnosis).Partial)
	gt.True(t, result.Confidence.Breakdown.Execution < 1)
	gt.S(t, result.Response).Contains("风险检测 暂时无法获取")
	gt.S(t, result.Response).Contains("部分数据缺失")
}

func TestProcessTurnContextSubject(t *testing.T) {
	p := newPipeline(t, chat.PipelineInput{})
	convCtx := model.NewConversationContext(0)
	convCtx.SetSubject("m001", "老王面馆")

	result := gt.R1(p.ProcessTurn(context.Background(), "有什么风险", convCtx)).NoError(t)

	gt.False(t, result.Switch.ShouldSwitch)
	gt.S(t, result.Rewrite.Normalized).Contains("老王面馆")
	gt.Equal(t, result.Intent.Intent, model.IntentRiskQuery)
	gt.Equal(t, result.Entity.ID, model.MerchantID("m001"))
	gt.S(t, result.Response).Contains("老王面馆存在以下风险")
}

func TestProcessTurnMissingSubject(t *testing.T) {
	p := newPipeline(t, chat.PipelineInput{})

	result := gt.R1(p.ProcessTurn(context.Background(), "有什么风险", model.NewConversationContext(0))).NoError(t)

	gt.Equal(t, result.Intent.Intent, model.IntentRiskQuery)
	gt.False(t, result.Entity.Matched)
	gt.A(t, result.Plan.Tasks).Length(0)
	gt.Equal(t, result.Plan.Confidence, 0.5)
}

func TestNewPipelineRequiresRepo(t *testing.T) {
	_, err := chat.NewPipeline(chat.PipelineInput{})
	gt.Error(t, err)
}

func TestPipelineCleanup(t *testing.T) {
	p := newPipeline(t, chat.PipelineInput{})
	p.StartCleanup(context.Background(), 0)
	p.StartCleanup(context.Background(), 0)
	p.Stop()
	p.Stop()
}
