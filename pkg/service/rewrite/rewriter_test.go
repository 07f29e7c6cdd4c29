package rewrite_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/service/rewrite"
	"github.com/m-mizutani/gt"
)

func subject(id model.MerchantID, name string) *model.ConversationContext {
	ctx := model.NewConversationContext(0)
	ctx.SetSubject(id, name)
	return ctx
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	gt.True(t, math.Abs(got-want) < 1e-9).Describe(fmt.Sprintf("got %v, want %v", got, want))
}

func kinds(ops []model.RewriteOperation) []model.RewriteKind {
	out := make([]model.RewriteKind, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Kind)
	}
	return out
}

func TestRewrite(t *testing.T) {
	testCases := []struct {
		name       string
		input      string
		ctx        *model.ConversationContext
		normalized string
		kinds      []model.RewriteKind
		confidence float64
	}{
		{
			name:       "pronoun resolved to merchant in focus",
			input:      "它最近怎么样",
			ctx:        subject("m1", "海底捞火锅"),
			normalized: "海底捞火锅最近怎么样",
			kinds:      []model.RewriteKind{model.RewriteCoreference},
			confidence: 0.9,
		},
		{
			name:       "no subject leaves pronoun alone",
			input:      "它最近怎么样",
			ctx:        model.NewConversationContext(0),
			normalized: "它最近怎么样",
			kinds:      []model.RewriteKind{},
			confidence: 1.0,
		},
		{
			name:       "demonstrative shop phrase",
			input:      "这家店的营收",
			ctx:        subject("m1", "海底捞火锅"),
			normalized: "海底捞火锅的营收",
			kinds:      []model.RewriteKind{model.RewriteCoreference},
			confidence: 0.9,
		},
		{
			name:       "other is not a pronoun",
			input:      "其它商户怎么样",
			ctx:        subject("m1", "海底捞火锅"),
			normalized: "其它商户怎么样",
			kinds:      []model.RewriteKind{},
			confidence: 1.0,
		},
		{
			name:       "elided subject completed",
			input:      "有什么问题",
			ctx:        subject("m1", "海底捞火锅"),
			normalized: "海底捞火锅有什么问题",
			kinds:      []model.RewriteKind{model.RewriteEllipsis},
			confidence: 0.9,
		},
		{
			name:       "elided subject behind colloquial noun",
			input:      "流水怎么样",
			ctx:        subject("m1", "海底捞火锅"),
			normalized: "海底捞火锅营收怎么样",
			kinds:      []model.RewriteKind{model.RewriteEllipsis, model.RewriteExpansion},
			confidence: 0.85,
		},
		{
			name:       "shop phrase with trailing noun",
			input:      "这家店铺怎么样",
			ctx:        subject("m1", "海底捞火锅"),
			normalized: "海底捞火锅怎么样",
			kinds:      []model.RewriteKind{model.RewriteCoreference},
			confidence: 0.9,
		},
		{
			name:       "vocabulary expanded",
			input:      "最近生意怎么样",
			ctx:        model.NewConversationContext(0),
			normalized: "最近经营状况怎么样",
			kinds:      []model.RewriteKind{model.RewriteExpansion},
			confidence: 0.95,
		},
		{
			name:       "expansion skipped when specific term present",
			input:      "商家和商户有什么区别",
			ctx:        model.NewConversationContext(0),
			normalized: "商家和商户有什么区别",
			kinds:      []model.RewriteKind{},
			confidence: 1.0,
		},
		{
			name:       "fillers and whitespace normalized for free",
			input:      "海底捞火锅   营收 怎么样呢？",
			ctx:        model.NewConversationContext(0),
			normalized: "海底捞火锅 营收 怎么样",
			kinds:      []model.RewriteKind{model.RewriteNormalization},
			confidence: 1.0,
		},
		{
			name:       "subject without name is a failed substitution",
			input:      "它怎么样",
			ctx:        subject("m1", ""),
			normalized: "它怎么样",
			kinds:      []model.RewriteKind{model.RewriteCoreference},
			confidence: 0.7,
		},
	}

	r := rewrite.New()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.Rewrite(tc.input, tc.ctx)
			gt.Equal(t, got.Original, tc.input)
			gt.Equal(t, got.Normalized, tc.normalized)
			gt.Equal(t, kinds(got.Operations), tc.kinds)
			approx(t, got.Confidence, tc.confidence)
		})
	}
}

func TestRewriteOperationRecord(t *testing.T) {
	got := rewrite.New().Rewrite("它最近怎么样", subject("m1", "海底捞火锅"))
	gt.A(t, got.Operations).Length(1)
	gt.Equal(t, got.Operations[0], model.RewriteOperation{
		Kind: model.RewriteCoreference,
		From: "它",
		To:   "海底捞火锅",
	})
}

func TestRewriteConfidenceFloor(t *testing.T) {
	input := "它 它 它 它 它 生意 流水"
	ctx := subject("m1", "海底捞火锅")

	t.Run("default floor", func(t *testing.T) {
		got := rewrite.New().Rewrite(input, ctx)
		gt.A(t, got.Operations).Length(7)
		approx(t, got.Confidence, rewrite.DefaultFloor)
	})

	t.Run("configurable floor", func(t *testing.T) {
		got := rewrite.New(rewrite.WithFloor(0)).Rewrite(input, ctx)
		// 1.0 - 5*0.1 - 2*0.05 - min(2*0.05, 0.2)
		approx(t, got.Confidence, 0.3)
	})

	t.Run("out of range floor ignored", func(t *testing.T) {
		got := rewrite.New(rewrite.WithFloor(-1)).Rewrite(input, ctx)
		approx(t, got.Confidence, rewrite.DefaultFloor)
	})
}

func TestRewriteExtraOperationPenaltyCapped(t *testing.T) {
	ctx := subject("m1", "海底捞火锅")
	got := rewrite.New(rewrite.WithFloor(0)).Rewrite("它它它它它它它它它它", ctx)
	gt.A(t, got.Operations).Length(10)
	// 10 references cost 1.0 and the overflow penalty is capped at 0.2
	approx(t, got.Confidence, 0)
}

func TestRewriteIdempotent(t *testing.T) {
	inputs := []string{
		"它最近怎么样",
		"有什么问题呢？",
		"这家店最近生意怎么样啊",
		"  海底捞火锅   流水  ",
		"那家的差评多吗",
		"how is it going",
		"为什么下滑",
		"流水怎么样",
		"流水如何",
		"生意怎么样",
		"有什么毛病",
		"这家店铺怎么样",
	}
	ctx := subject("m1", "海底捞火锅")
	r := rewrite.New()

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first := r.Rewrite(input, ctx)
			second := r.Rewrite(first.Normalized, ctx)
			gt.A(t, second.Operations).Length(0)
			gt.Equal(t, second.Normalized, first.Normalized)
			approx(t, second.Confidence, 1.0)
		})
	}
}

func TestRewriteDoesNotMutateContext(t *testing.T) {
	ctx := subject("m1", "海底捞火锅")
	ctx.AddMessage(model.RoleUser, "hello")
	before := ctx.Clone()

	rewrite.New().Rewrite("它怎么样", ctx)
	gt.Equal(t, ctx.MerchantName, before.MerchantName)
	gt.Equal(t, ctx.MerchantID, before.MerchantID)
	gt.A(t, ctx.Messages).Length(len(before.Messages))
}
