package switcher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/service/switcher"
	"github.com/m-mizutani/gt"
)

type mockCatalog struct {
	listFn func(ctx context.Context) ([]*model.Merchant, error)
}

func (m *mockCatalog) ListMerchants(ctx context.Context) ([]*model.Merchant, error) {
	return m.listFn(ctx)
}

func newCatalog(merchants ...*model.Merchant) *mockCatalog {
	return &mockCatalog{
		listFn: func(ctx context.Context) ([]*model.Merchant, error) {
			return merchants, nil
		},
	}
}

func TestDetect(t *testing.T) {
	catalog := newCatalog(
		&model.Merchant{ID: "m001", Name: "海底捞火锅"},
		&model.Merchant{ID: "m002", Name: "星巴克咖啡"},
		&model.Merchant{ID: "m003", Name: "老王面馆"},
		&model.Merchant{ID: "m004", Name: "小李咖啡"},
	)
	detector := switcher.New(catalog)

	focused := model.NewConversationContext(0)
	focused.SetSubject("m001", "海底捞火锅")

	testCases := []struct {
		name       string
		input      string
		current    *model.ConversationContext
		switched   bool
		targetID   model.MerchantID
		confidence float64
	}{
		{
			name:       "names another merchant",
			input:      "星巴克咖啡最近怎么样",
			current:    focused,
			switched:   true,
			targetID:   "m002",
			confidence: switcher.NamedMerchantConfidence,
		},
		{
			name:       "names another merchant by core name",
			input:      "那老王呢",
			current:    focused,
			switched:   true,
			targetID:   "m003",
			confidence: switcher.NamedMerchantConfidence,
		},
		{
			name:       "first merchant of the conversation",
			input:      "海底捞火锅有什么风险",
			current:    model.NewConversationContext(0),
			switched:   true,
			targetID:   "m001",
			confidence: switcher.NamedMerchantConfidence,
		},
		{
			name:       "names the current merchant",
			input:      "海底捞最近营收怎么样",
			current:    focused,
			switched:   false,
			confidence: switcher.NoSwitchConfidence,
		},
		{
			name:       "switch vocabulary without a name",
			input:      "换一家看看",
			current:    focused,
			switched:   true,
			confidence: switcher.SwitchWordConfidence,
		},
		{
			name:       "english switch vocabulary",
			input:      "show me another one",
			current:    focused,
			switched:   true,
			confidence: switcher.SwitchWordConfidence,
		},
		{
			name:       "current and another merchant both named",
			input:      "海底捞火锅先不看了，看看小李咖啡",
			current:    focused,
			switched:   true,
			targetID:   "m004",
			confidence: switcher.NamedMerchantConfidence,
		},
		{
			name:       "comparison naming another merchant switches",
			input:      "比较海底捞火锅和小李咖啡",
			current:    focused,
			switched:   true,
			targetID:   "m004",
			confidence: switcher.NamedMerchantConfidence,
		},
		{
			name:       "comparison naming only the current merchant",
			input:      "海底捞和上个月相比怎么样",
			current:    focused,
			switched:   false,
			confidence: switcher.ComparisonConfidence,
		},
		{
			name:       "comparison without a name",
			input:      "跟上个月相比呢",
			current:    focused,
			switched:   false,
			confidence: switcher.ComparisonConfidence,
		},
		{
			name:       "plain follow-up",
			input:      "它最近怎么样",
			current:    focused,
			switched:   false,
			confidence: switcher.NoSwitchConfidence,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := gt.R1(detector.Detect(context.Background(), tc.input, tc.current)).NoError(t)
			gt.Equal(t, d.ShouldSwitch, tc.switched)
			gt.Equal(t, d.TargetID, tc.targetID)
			gt.Equal(t, d.Confidence, tc.confidence)
			gt.NotEqual(t, d.Reason, "")
		})
	}
}

func TestDetectCatalogError(t *testing.T) {
	detector := switcher.New(&mockCatalog{
		listFn: func(ctx context.Context) ([]*model.Merchant, error) {
			return nil, errors.New("catalog down")
		},
	})

	_, err := detector.Detect(context.Background(), "星巴克咖啡", nil)
	gt.Error(t, err)
}
