package validator

import (
	"regexp"
	"strings"
)

// Placeholder replaces merchant names that were not supplied to the
// generator.
const Placeholder = "[某商户]"

// Disclosure is appended to advice that does not cite a reference case.
const Disclosure = "（以上建议基于同类商户的经验模式总结，并非对具体案例的直接引用，仅供参考。）"

const maxSanitizePasses = 10

var (
	// namePattern matches a run of Han or alphanumeric characters followed
	// by one or more business suffixes. Longer suffixes are listed first.
	// Chinese has no word boundaries, so a match may start with words that
	// are not part of the name; nameStart cuts them off.
	namePattern = regexp.MustCompile(`[\p{Han}A-Za-z0-9]{2,12}?(?:` + strings.Join(businessSuffixes, "|") + `)+`)

	businessSuffixes = []string{
		"旗舰店", "专卖店", "便利店", "咖啡馆", "有限公司",
		"火锅", "餐厅", "饭店", "超市", "咖啡", "奶茶", "烧烤", "面馆", "药房", "酒楼", "公司",
		"店",
	}

	// stopWords never appear inside a merchant name in generated text; the
	// name starts after the last one in a match.
	stopWords = []string{
		"推荐", "建议", "包括", "例如", "比如", "其中", "其次", "以及", "还有", "分别",
		"的", "是", "和", "与", "及", "在", "了", "有", "为", "比", "或", "而", "但",
		"就", "还", "又", "很", "最", "更", "较", "等", "都", "也", "从", "到", "向",
		"对", "把", "被", "让", "给", "像",
	}

	countPrefix = regexp.MustCompile(`^[0-9一二三四五六七八九十两几多]+[家个间所]`)

	// genericWords are category nouns that match namePattern without naming
	// anyone.
	genericWords = map[string]bool{
		"商户": true, "门店": true, "餐厅": true, "饭店": true, "火锅店": true, "超市": true,
		"便利店": true, "咖啡店": true, "奶茶店": true, "烧烤店": true, "面馆": true, "药房": true,
		"旗舰店": true, "专卖店": true, "连锁店": true, "分店": true, "小店": true, "实体店": true,
		"网店": true, "新店": true, "老店": true, "本店": true, "商店": true, "公司": true,
	}

	// genericPrefixes turn any suffix into a generic reference, e.g.
	// "同类餐厅" or "附近的便利店".
	genericPrefixes = []string{
		"这家", "那家", "这个", "那个", "该", "本", "同类", "同行", "其他", "其它", "附近",
		"一家", "某", "多家", "部分", "各", "周边", "类似", "竞争",
	}

	recommendationWords = []string{
		"建议", "推荐", "应该", "可以尝试", "不妨", "最好",
		"recommend", "suggest", "should",
	}
	citationMarkers = []string{"案例", "参考案例", "类似情况", "case"}
)

type AggregationCheck struct {
	Valid             bool     `json:"valid"`
	FabricatedNames   []string `json:"fabricated_names,omitempty"`
	SanitizedResponse string   `json:"sanitized_response"`
}

type CitationCheck struct {
	Valid            bool     `json:"valid"`
	Warnings         []string `json:"warnings,omitempty"`
	EnhancedResponse string   `json:"enhanced_response"`
}

// ValidateAggregationResponse replaces every merchant name in text that is
// neither in known nor a generic category word. Replacement is repeated
// until no unknown name is left, since removing one name can make a new
// match appear across the join.
func ValidateAggregationResponse(text string, known []string) *AggregationCheck {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		if k = strings.TrimSpace(k); k != "" {
			knownSet[k] = true
		}
	}

	check := &AggregationCheck{Valid: true, SanitizedResponse: text}
	seen := map[string]bool{}

	for pass := 0; pass < maxSanitizePasses; pass++ {
		changed := false
		check.SanitizedResponse = namePattern.ReplaceAllStringFunc(check.SanitizedResponse, func(match string) string {
			cut := nameStart(match)
			name := match[cut:]
			if loc := countPrefix.FindStringIndex(name); loc != nil {
				rest := name[loc[1]:]
				if isCategory(rest) {
					return match
				}
				cut += loc[1]
				name = rest
			}
			if len([]rune(name)) < 2 || isKnown(name, knownSet) || isGeneric(name) {
				return match
			}
			if !seen[name] {
				seen[name] = true
				check.FabricatedNames = append(check.FabricatedNames, name)
			}
			changed = true
			return match[:cut] + Placeholder
		})
		if !changed {
			break
		}
	}

	check.Valid = len(check.FabricatedNames) == 0
	return check
}

// ValidateCaseCitation appends Disclosure when text gives advice without
// citing a case although reference cases were available.
func ValidateCaseCitation(text string, hasCases bool) *CitationCheck {
	check := &CitationCheck{Valid: true, EnhancedResponse: text}
	if !hasCases {
		return check
	}

	lowered := strings.ToLower(text)
	if !containsAny(lowered, recommendationWords) || containsAny(lowered, citationMarkers) {
		return check
	}

	check.Valid = false
	check.Warnings = append(check.Warnings, "response gives advice without citing a reference case")
	if !strings.Contains(text, Disclosure) {
		check.EnhancedResponse = strings.TrimRight(text, "\n ") + "\n\n" + Disclosure
	}
	return check
}

// nameStart returns the byte offset where the name inside match begins.
// Only the part before the business suffixes is searched for stop words.
func nameStart(match string) int {
	head := match
	for trimmed := true; trimmed; {
		trimmed = false
		for _, suffix := range businessSuffixes {
			if h, ok := strings.CutSuffix(head, suffix); ok && h != "" {
				head, trimmed = h, true
				break
			}
		}
	}

	cut := 0
	for _, w := range stopWords {
		if i := strings.LastIndex(head, w); i >= 0 && i+len(w) > cut {
			cut = i + len(w)
		}
	}
	return cut
}

// isKnown accepts a name equal to a known name, a fragment of one, one
// that extends a known name with more suffixes ("海底捞火锅店"), or one that
// prefixes a known name with a generic word ("这家海底捞火锅").
func isKnown(name string, known map[string]bool) bool {
	if known[name] {
		return true
	}
	for k := range known {
		if strings.Contains(k, name) || strings.HasPrefix(name, k) {
			return true
		}
		if prefix, ok := strings.CutSuffix(name, k); ok && isGenericPrefix(prefix) {
			return true
		}
	}
	return false
}

func isGeneric(name string) bool {
	if genericWords[name] {
		return true
	}
	for _, p := range genericPrefixes {
		if rest, ok := strings.CutPrefix(name, p); ok {
			if rest == "" || genericWords[rest] || len([]rune(rest)) <= 2 {
				return true
			}
		}
	}
	return false
}

// isCategory reports whether the text after a count such as "两家" is a
// category noun or a bare suffix rather than a name.
func isCategory(rest string) bool {
	if rest == "" || genericWords[rest] {
		return true
	}
	for _, suffix := range businessSuffixes {
		if rest == suffix {
			return true
		}
	}
	return false
}

func isGenericPrefix(s string) bool {
	for _, p := range genericPrefixes {
		if s == p {
			return true
		}
	}
	return false
}

func containsAny(lowered string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}
