package skill

import (
	"context"
	"time"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrSkillNotFound    = goerr.New("skill not found")
	ErrMerchantRequired = goerr.New("skill requires a merchant")
	ErrTimeout          = goerr.New("skill timed out")
	ErrPanic            = goerr.New("skill panicked")
)

// DefaultTimeout bounds a single skill invocation.
const DefaultTimeout = 10 * time.Second

// Input is everything a skill may read. Dependencies holds the result of
// every task the current task depends on, failed ones included; a skill
// decides for itself whether it can work with a failed dependency.
type Input struct {
	Merchant     *model.Merchant
	Params       map[string]any
	Dependencies map[model.TaskID]*model.SkillResult
}

// Skill is a read-only unit of analysis dispatched by the executor.
type Skill interface {
	Action() model.Action
	Run(ctx context.Context, in *Input) (any, error)
}

// FindData returns the data of the first successful dependency whose data
// has type T.
func FindData[T any](deps map[model.TaskID]*model.SkillResult) (T, bool) {
	var zero T
	for _, r := range deps {
		if r == nil || !r.Success {
			continue
		}
		if v, ok := r.Data.(T); ok {
			return v, true
		}
	}
	return zero, false
}

// failedDependencies lists the dependencies that produced no usable data.
func failedDependencies(deps map[model.TaskID]*model.SkillResult) []model.TaskID {
	var failed []model.TaskID
	for id, r := range deps {
		if r == nil || !r.Success {
			failed = append(failed, id)
		}
	}
	return failed
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
