package boundary

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// policyQuery is the Rego document a boundary policy must define. A policy
// refuses a query by adding an object to the deny set:
//
//	package boundary
//
//	deny contains {"reason": "...", "suggested_action": "..."} if {
//		contains(input.query, "competitor")
//	}
const policyQuery = "data.boundary"

// regoPrintHook forwards Rego print() statements to the logger.
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("[rego] "+message, "query", policyQuery)
	return nil
}

// Policy evaluates operator-supplied Rego rules after the built-in table.
type Policy struct {
	query *rego.PreparedEvalQuery
}

// LoadPolicy reads every .rego file in dir. It returns nil without error
// when the directory has no policy files.
func LoadPolicy(ctx context.Context, dir string) (*Policy, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	modules := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules[file] = string(data)
	}
	return NewPolicy(ctx, modules)
}

// NewPolicy prepares a policy from module sources keyed by file name.
func NewPolicy(ctx context.Context, modules map[string]string) (*Policy, error) {
	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query(policyQuery))
	for name, src := range modules {
		options = append(options, rego.Module(name, src))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare boundary policy", goerr.V("query", policyQuery))
	}
	return &Policy{query: &prepared}, nil
}

// Eval returns a refusal when the policy denies the query, or nil.
func (p *Policy) Eval(ctx context.Context, raw string) (*Decision, error) {
	if p == nil || p.query == nil {
		return nil, nil
	}

	rs, err := p.query.Eval(ctx,
		rego.EvalInput(map[string]any{"query": raw}),
		rego.EvalPrintHook(&regoPrintHook{ctx: ctx}),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate boundary policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, nil
	}
	denies, ok := data["deny"].([]any)
	if !ok || len(denies) == 0 {
		return nil, nil
	}

	deny, ok := denies[0].(map[string]any)
	if !ok {
		return nil, goerr.New("invalid boundary policy result: deny entry is not an object",
			goerr.V("deny", denies[0]))
	}

	return &Decision{
		Allowed:         false,
		Category:        CategoryPolicy,
		Reason:          getString(deny, "reason"),
		SuggestedAction: getString(deny, "suggested_action"),
	}, nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
