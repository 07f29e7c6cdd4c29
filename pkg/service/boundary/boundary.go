package boundary

import (
	"context"
	"strings"

	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultUncertaintyThreshold is the confidence under which a query is
// recommended for human review.
const DefaultUncertaintyThreshold = 0.6

// Decision is the outcome of a boundary check. A refusal is a normal
// result, not an error.
type Decision struct {
	Allowed         bool     `json:"allowed"`
	Category        Category `json:"category,omitempty"`
	Keyword         string   `json:"keyword,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
}

// Uncertainty recommends human intervention; callers decide what to do
// with it.
type Uncertainty struct {
	NeedsHuman bool     `json:"needs_human"`
	Reasons    []string `json:"reasons,omitempty"`
}

type Checker struct {
	rules     []Rule
	policy    *Policy
	threshold float64
}

type Option func(*Checker)

// WithRules replaces DefaultRules.
func WithRules(rules []Rule) Option {
	return func(c *Checker) { c.rules = rules }
}

// WithPolicy adds Rego rules evaluated when no built-in rule matches.
func WithPolicy(p *Policy) Option {
	return func(c *Checker) { c.policy = p }
}

func WithUncertaintyThreshold(threshold float64) Option {
	return func(c *Checker) { c.threshold = threshold }
}

func New(opts ...Option) *Checker {
	c := &Checker{
		rules:     DefaultRules,
		threshold: DefaultUncertaintyThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check classifies raw input before anything else runs. Rules are tried in
// order and the first match wins.
func (c *Checker) Check(ctx context.Context, raw string) (*Decision, error) {
	lowered := strings.ToLower(raw)
	for _, rule := range c.rules {
		if kw, ok := rule.Match(lowered); ok {
			logging.From(ctx).Info("query refused by boundary rule",
				"category", rule.Category, "keyword", kw)
			return &Decision{
				Allowed:         false,
				Category:        rule.Category,
				Keyword:         kw,
				Reason:          rule.Reason,
				SuggestedAction: rule.SuggestedAction,
			}, nil
		}
	}

	decision, err := c.policy.Eval(ctx, raw)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check boundary")
	}
	if decision != nil {
		logging.From(ctx).Info("query refused by boundary policy", "reason", decision.Reason)
		return decision, nil
	}

	return &Decision{Allowed: true}, nil
}

// CheckUncertainty flags queries a person should answer: low confidence,
// requests to predict the future and requests for legal or financial advice.
func (c *Checker) CheckUncertainty(query string, confidence float64) *Uncertainty {
	lowered := strings.ToLower(query)
	u := &Uncertainty{}

	if confidence < c.threshold {
		u.Reasons = append(u.Reasons, "理解置信度较低，建议人工确认")
	}
	if predictionRule.match(lowered) {
		u.Reasons = append(u.Reasons, predictionRule.reason)
	}
	if regulatedAdviceRule.match(lowered) {
		u.Reasons = append(u.Reasons, regulatedAdviceRule.reason)
	}

	u.NeedsHuman = len(u.Reasons) > 0
	return u
}
