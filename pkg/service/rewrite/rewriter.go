package rewrite

import (
	"strings"

	"github.com/m-mizutani/dashchat/pkg/model"
)

const (
	// DefaultFloor is the lowest confidence a rewrite can report. Partial
	// understanding is still actionable, and a lower floor would make the
	// confirmation prompt fire on most follow-up questions.
	DefaultFloor = 0.5

	referenceCost       = 0.1
	failedReferenceCost = 0.3
	expansionCost       = 0.05
	freeOperations      = 5
	extraOperationCost  = 0.05
	maxExtraPenalty     = 0.2
)

type Rewriter struct {
	floor float64
}

type Option func(*Rewriter)

// WithFloor overrides DefaultFloor. Values outside [0, 1] are ignored.
func WithFloor(floor float64) Option {
	return func(r *Rewriter) {
		if floor >= 0 && floor <= 1 {
			r.floor = floor
		}
	}
}

func New(opts ...Option) *Rewriter {
	r := &Rewriter{floor: DefaultFloor}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite resolves references against ctx, completes elided subjects,
// expands colloquial vocabulary and normalizes the query. It neither
// performs I/O nor modifies ctx.
func (r *Rewriter) Rewrite(input string, ctx *model.ConversationContext) *model.RewriteResult {
	var ops []model.RewriteOperation

	text := input
	text, ops = resolveCoreference(text, ctx, ops)
	text, ops = completeEllipsis(text, ctx, ops)
	text, ops = expandVocabulary(text, ops)
	text, ops = normalize(text, ops)

	return &model.RewriteResult{
		Original:   input,
		Normalized: text,
		Operations: ops,
		Confidence: r.score(ops),
	}
}

func (r *Rewriter) score(ops []model.RewriteOperation) float64 {
	score := 1.0
	for _, op := range ops {
		switch op.Kind {
		case model.RewriteCoreference, model.RewriteEllipsis:
			if op.From != op.To && op.To != "" {
				score -= referenceCost
			} else {
				score -= failedReferenceCost
			}
		case model.RewriteExpansion:
			score -= expansionCost
		}
	}

	if extra := len(ops) - freeOperations; extra > 0 {
		penalty := float64(extra) * extraOperationCost
		if penalty > maxExtraPenalty {
			penalty = maxExtraPenalty
		}
		score -= penalty
	}

	if score < r.floor {
		score = r.floor
	}
	if score > 1 {
		score = 1
	}
	return score
}

func resolveCoreference(text string, ctx *model.ConversationContext, ops []model.RewriteOperation) (string, []model.RewriteOperation) {
	if !ctx.HasSubject() {
		return text, ops
	}
	name := ctx.MerchantName

	matches := referencePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, ops
	}

	names := nameSpans(text, name)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		expr := text[m[0]:m[1]]
		if isBlocked(text[:m[0]], expr) || insideSpan(m, names) {
			continue
		}

		b.WriteString(text[last:m[0]])
		if name != "" {
			b.WriteString(name)
		} else {
			b.WriteString(expr)
		}
		last = m[1]
		ops = append(ops, model.RewriteOperation{
			Kind: model.RewriteCoreference,
			From: expr,
			To:   name,
		})
	}
	b.WriteString(text[last:])
	return b.String(), ops
}

// nameSpans returns byte ranges where name already occurs in text; a merchant
// name may itself contain a referring expression.
func nameSpans(text, name string) [][2]int {
	if name == "" {
		return nil
	}
	var spans [][2]int
	for offset := 0; ; {
		i := strings.Index(text[offset:], name)
		if i < 0 {
			return spans
		}
		start := offset + i
		spans = append(spans, [2]int{start, start + len(name)})
		offset = start + len(name)
	}
}

func insideSpan(m []int, spans [][2]int) bool {
	for _, s := range spans {
		if m[0] < s[1] && m[1] > s[0] {
			return true
		}
	}
	return false
}

func isBlocked(before, expr string) bool {
	for _, prefix := range pronounBlockers[expr] {
		if strings.HasSuffix(before, prefix) {
			return true
		}
	}
	return false
}

func completeEllipsis(text string, ctx *model.ConversationContext, ops []model.RewriteOperation) (string, []model.RewriteOperation) {
	if !ctx.HasSubject() {
		return text, ops
	}
	name := ctx.MerchantName
	if name != "" && strings.Contains(text, name) {
		return text, ops
	}

	trimmed := strings.TrimSpace(text)
	// Patterns are written in dashboard vocabulary, so match against the
	// expanded form; otherwise a second pass would see a new ellipsis.
	expanded := expand(trimmed)
	for _, p := range ellipsisPatterns {
		if !p.MatchString(expanded) {
			continue
		}
		completed := trimmed
		if name != "" {
			completed = name + trimmed
		}
		ops = append(ops, model.RewriteOperation{
			Kind: model.RewriteEllipsis,
			From: trimmed,
			To:   completed,
		})
		return completed, ops
	}
	return text, ops
}

func expandVocabulary(text string, ops []model.RewriteOperation) (string, []model.RewriteOperation) {
	for _, s := range synonyms {
		if !s.applies(text) {
			continue
		}
		text = strings.ReplaceAll(text, s.generic, s.specific)
		ops = append(ops, model.RewriteOperation{
			Kind: model.RewriteExpansion,
			From: s.generic,
			To:   s.specific,
		})
	}
	return text, ops
}

func normalize(text string, ops []model.RewriteOperation) (string, []model.RewriteOperation) {
	normalized := strings.Join(strings.Fields(text), " ")
	normalized = strings.TrimRight(normalized, trailingFillers+trailingPunctuation)
	if normalized == text {
		return text, ops
	}
	return normalized, append(ops, model.RewriteOperation{
		Kind: model.RewriteNormalization,
		From: text,
		To:   normalized,
	})
}

func expand(text string) string {
	for _, s := range synonyms {
		if s.applies(text) {
			text = strings.ReplaceAll(text, s.generic, s.specific)
		}
	}
	return text
}
