package entity

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/dashchat/pkg/model"
)

type MatchKind int

const (
	MatchNone MatchKind = iota
	// MatchFuzzy means the text mentions the merchant's name without its
	// business suffix, e.g. "海底捞" for "海底捞火锅".
	MatchFuzzy
	MatchExact
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// nameSuffixes are stripped to get the core of a merchant name. Longer
// suffixes come first so "旗舰店" is removed before "店".
var nameSuffixes = []string{
	"有限公司", "旗舰店", "专卖店", "便利店", "咖啡馆",
	"公司", "分店", "餐厅", "饭店", "火锅", "超市", "药房", "酒楼", "面馆", "烧烤",
	"店",
}

const minCoreRunes = 2

// CoreName strips one business suffix from name. It returns name unchanged
// when stripping would leave fewer than two characters.
func CoreName(name string) string {
	name = strings.TrimSpace(name)
	for _, suffix := range nameSuffixes {
		if core, ok := strings.CutSuffix(name, suffix); ok {
			if utf8.RuneCountInString(core) >= minCoreRunes {
				return core
			}
			return name
		}
	}
	return name
}

// Match finds the merchant mentioned in text. Exact name containment is
// tried across the whole catalog before core-name containment, and longer
// names win over shorter ones within each pass.
func Match(text string, merchants []*model.Merchant) (*model.Merchant, MatchKind) {
	if text == "" || len(merchants) == 0 {
		return nil, MatchNone
	}
	lowered := strings.ToLower(text)

	sorted := make([]*model.Merchant, 0, len(merchants))
	for _, m := range merchants {
		if m != nil && strings.TrimSpace(m.Name) != "" {
			sorted = append(sorted, m)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Name) > utf8.RuneCountInString(sorted[j].Name)
	})

	for _, m := range sorted {
		if strings.Contains(lowered, strings.ToLower(m.Name)) {
			return m, MatchExact
		}
	}

	var best *model.Merchant
	bestLen := 0
	for _, m := range sorted {
		core := CoreName(m.Name)
		if core == m.Name {
			continue
		}
		if n := utf8.RuneCountInString(core); n > bestLen && strings.Contains(lowered, strings.ToLower(core)) {
			best, bestLen = m, n
		}
	}
	if best != nil {
		return best, MatchFuzzy
	}

	return nil, MatchNone
}
