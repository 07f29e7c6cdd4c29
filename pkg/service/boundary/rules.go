package boundary

import (
	"strings"
)

type Category string

const (
	CategoryModification Category = "modification"
	CategoryBatch        Category = "batch"
	CategorySensitive    Category = "sensitive"
	CategoryAdmin        Category = "admin"
	CategoryPolicy       Category = "policy"
)

// Rule refuses a query that contains any of Keywords.
type Rule struct {
	Category        Category
	Keywords        []string
	Reason          string
	SuggestedAction string
}

// Match reports whether the lowercased query contains one of the keywords
// and returns the keyword that matched.
func (r Rule) Match(lowered string) (string, bool) {
	for _, kw := range r.Keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// DefaultRules is evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{
		Category: CategoryModification,
		Keywords: []string{
			"删除", "删掉", "修改", "更改", "编辑", "新增", "添加", "创建", "变更",
			"改成", "改为", "设置为", "清空",
			"delete", "remove", "modify", "update", "insert", "drop table",
		},
		Reason:          "助手只能查询和分析数据，不能修改商户数据。",
		SuggestedAction: "如需修改数据，请前往商户管理页面操作。",
	},
	{
		Category: CategoryBatch,
		Keywords: []string{
			"批量", "全部导出", "导出所有", "导出全部", "一键", "群发",
			"bulk", "batch", "export all",
		},
		Reason:          "助手不支持批量操作。",
		SuggestedAction: "请使用数据导出功能，或逐个查询商户。",
	},
	{
		Category: CategorySensitive,
		Keywords: []string{
			"密码", "身份证", "手机号", "电话号码", "银行卡", "银行账号", "联系方式", "家庭住址",
			"password", "credit card", "id number",
		},
		Reason:          "该请求涉及敏感信息，助手无权访问。",
		SuggestedAction: "如确有需要，请通过权限审批流程申请查看。",
	},
	{
		Category: CategoryAdmin,
		Keywords: []string{
			"管理员", "权限", "系统配置", "系统设置", "用户管理", "角色分配", "后台配置",
			"admin", "permission", "sudo",
		},
		Reason:          "助手不能执行系统管理操作。",
		SuggestedAction: "请联系系统管理员处理。",
	},
}

type uncertaintyRule struct {
	reason   string
	keywords []string
}

var (
	predictionRule = uncertaintyRule{
		reason: "涉及未来预测，结果仅供参考，建议人工判断",
		keywords: []string{
			"预测", "未来", "将来", "明年", "下个月会", "会不会倒闭", "会不会增长", "能撑多久",
			"forecast", "predict", "will it",
		},
	}
	regulatedAdviceRule = uncertaintyRule{
		reason: "涉及法律或金融专业意见，请咨询专业人士",
		keywords: []string{
			"法律", "律师", "起诉", "诉讼", "合同纠纷", "违法", "投资建议", "贷款", "理财",
			"股票", "税务筹划", "融资建议",
			"legal advice", "lawsuit", "investment advice", "tax advice",
		},
	}
)

func (r uncertaintyRule) match(lowered string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
