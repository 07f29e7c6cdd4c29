package rewrite

import (
	"regexp"
	"sort"
	"strings"
)

// referringExpressions are replaced by the merchant in focus. Longer forms
// come first so that "这家店" wins over "这家".
var referringExpressions = []string{
	"这个商户", "那个商户", "这家商户", "那家商户", "该商户",
	"这家店铺", "那家店铺", "这个店铺", "那个店铺",
	"这家店", "那家店", "这个店", "那个店", "该店",
	"这一家", "那一家", "这家", "那家",
	"它",
}

// englishReferences are matched case-insensitively on word boundaries.
var englishReferences = []string{
	"this merchant", "that merchant", "this shop", "that shop", "this one", "that one",
}

// pronounBlockers precede a referring expression when it is part of another
// word, e.g. "其它".
var pronounBlockers = map[string][]string{
	"它": {"其"},
}

var referencePattern = buildReferencePattern()

func buildReferencePattern() *regexp.Regexp {
	zh := append([]string(nil), referringExpressions...)
	sort.SliceStable(zh, func(i, j int) bool { return len(zh[i]) > len(zh[j]) })
	quoted := make([]string, 0, len(zh))
	for _, e := range zh {
		quoted = append(quoted, regexp.QuoteMeta(e))
	}
	en := make([]string, 0, len(englishReferences))
	for _, e := range englishReferences {
		en = append(en, regexp.QuoteMeta(e))
	}
	return regexp.MustCompile(`(?i:\b(?:` + strings.Join(en, "|") + `)\b)|` + strings.Join(quoted, "|"))
}

// ellipsisPatterns match questions whose subject was left out.
var ellipsisPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:最近|目前|现在)?(?:有什么|有哪些|有啥|存在什么|存在哪些)(?:问题|风险|隐患|异常)`),
	regexp.MustCompile(`^(?:最近|目前|现在)?(?:怎么样|如何|咋样|情况如何|表现如何|还好吗)`),
	regexp.MustCompile(`^(?:经营状况|经营|营收|业绩|健康度|口碑|盈利|投诉)(?:怎么样|如何|情况|咋样)`),
	regexp.MustCompile(`^(?:为什么|为啥)(?:下滑|下降|不好|变差)`),
	regexp.MustCompile(`^(?i:how is it going|what(?:'s| is) wrong|any (?:problems|risks))`),
}

type synonym struct {
	generic  string
	specific string
}

// synonyms maps colloquial nouns to dashboard vocabulary. No specific term
// may appear as a generic one, so a single pass reaches a fixed point.
func (s synonym) applies(text string) bool {
	return strings.Contains(text, s.generic) && !strings.Contains(text, s.specific)
}

var synonyms = []synonym{
	{generic: "生意", specific: "经营状况"},
	{generic: "流水", specific: "营收"},
	{generic: "赚钱", specific: "盈利"},
	{generic: "差评", specific: "投诉"},
	{generic: "毛病", specific: "问题"},
	{generic: "商家", specific: "商户"},
	{generic: "店铺", specific: "商户"},
}

// trailingFillers are stripped from the end of a query, together with
// trailing punctuation. "么" is not listed because it ends "什么" and "怎么".
const trailingFillers = "呢吗啊吧呀哦啦嘛哈"

const trailingPunctuation = "？?！!。.，,~～…、 \t"
