package switcher

import (
	"context"
	"strings"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/service/entity"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	NamedMerchantConfidence = 0.95
	SwitchWordConfidence    = 0.8
	ComparisonConfidence    = 0.9
	NoSwitchConfidence      = 1.0
)

// Decision tells the session whether to change the merchant in focus.
// TargetID and TargetName are empty when the user asked for a different
// merchant without naming one.
type Decision struct {
	ShouldSwitch bool             `json:"should_switch"`
	TargetID     model.MerchantID `json:"target_id,omitempty"`
	TargetName   string           `json:"target_name,omitempty"`
	Confidence   float64          `json:"confidence"`
	Reason       string           `json:"reason"`
}

var (
	switchWords = []string{
		"换一个", "换一家", "换个", "另一个", "另一家", "别的商户", "其他商户", "切换", "换成",
		"another", "a different one", "switch to", "change to",
	}
	comparisonWords = []string{
		"对比", "比较", "相比", "比起", "和", "与", "跟",
		"compare", "versus", " vs ", " and ", " with ",
	}
)

// input is what each rule sees.
type input struct {
	text      string
	lowered   string
	current   *model.ConversationContext
	merchants []*model.Merchant
}

// rule returns a decision when it applies, nil otherwise.
type rule struct {
	name  string
	apply func(in *input) *Decision
}

var rules = []rule{
	{name: "named_merchant", apply: namedMerchant},
	{name: "switch_word", apply: switchWord},
	{name: "comparison", apply: comparison},
}

// Detector decides whether an utterance moves the conversation to another
// merchant. It runs on the raw input, before any rewriting.
type Detector struct {
	catalog entity.Catalog
}

func New(catalog entity.Catalog) *Detector {
	return &Detector{catalog: catalog}
}

func (d *Detector) Detect(ctx context.Context, text string, current *model.ConversationContext) (*Decision, error) {
	merchants, err := d.catalog.ListMerchants(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list merchants for switch detection")
	}

	in := &input{
		text:      text,
		lowered:   " " + strings.ToLower(text) + " ",
		current:   current,
		merchants: merchants,
	}

	for _, r := range rules {
		if decision := r.apply(in); decision != nil {
			logging.From(ctx).Debug("switch rule applied",
				"rule", r.name,
				"should_switch", decision.ShouldSwitch,
				"target", decision.TargetName)
			return decision, nil
		}
	}

	return &Decision{
		ShouldSwitch: false,
		Confidence:   NoSwitchConfidence,
		Reason:       "no switch signal",
	}, nil
}

// namedMerchant looks for a merchant other than the current one, so that
// naming both still switches. The current name is blanked out first since
// another merchant's core name may be part of it.
func namedMerchant(in *input) *Decision {
	text, others := in.text, in.merchants
	if in.current.HasSubject() {
		others = make([]*model.Merchant, 0, len(in.merchants))
		for _, m := range in.merchants {
			if m != nil && !isCurrent(m, in.current) {
				others = append(others, m)
			}
		}
		if name := in.current.MerchantName; name != "" {
			text = strings.ReplaceAll(text, name, " ")
		}
	}

	m, kind := entity.Match(text, others)
	if m == nil {
		return nil
	}
	return &Decision{
		ShouldSwitch: true,
		TargetID:     m.ID,
		TargetName:   m.Name,
		Confidence:   NamedMerchantConfidence,
		Reason:       "query names merchant " + m.Name + " (" + kind.String() + " match)",
	}
}

func switchWord(in *input) *Decision {
	if !containsAny(in.lowered, switchWords) {
		return nil
	}
	return &Decision{
		ShouldSwitch: true,
		Confidence:   SwitchWordConfidence,
		Reason:       "query asks for a different merchant",
	}
}

func comparison(in *input) *Decision {
	if !containsAny(in.lowered, comparisonWords) {
		return nil
	}
	return &Decision{
		ShouldSwitch: false,
		Confidence:   ComparisonConfidence,
		Reason:       "comparison keeps the current merchant in focus",
	}
}

func isCurrent(m *model.Merchant, current *model.ConversationContext) bool {
	if !current.HasSubject() {
		return false
	}
	if current.MerchantID != "" {
		return m.ID == current.MerchantID
	}
	return m.Name == current.MerchantName
}

func containsAny(lowered string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lowered, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
