package skill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Registry dispatches tasks to skills by action and enforces a deadline on
// every invocation.
type Registry struct {
	skills  map[model.Action]Skill
	timeout time.Duration
}

type Option func(*Registry)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithSkill adds or replaces the skill for its action.
func WithSkill(s Skill) Option {
	return func(r *Registry) { r.skills[s.Action()] = s }
}

// WithSkills adds every skill in skills.
func WithSkills(skills ...Skill) Option {
	return func(r *Registry) {
		for _, s := range skills {
			r.skills[s.Action()] = s
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		skills:  make(map[model.Action]Skill),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Actions returns the actions that have a registered skill.
func (r *Registry) Actions() []model.Action {
	actions := make([]model.Action, 0, len(r.skills))
	for a := range r.skills {
		actions = append(actions, a)
	}
	return actions
}

func (r *Registry) Has(action model.Action) bool {
	_, ok := r.skills[action]
	return ok
}

// Run executes the skill for task. A skill that does not return before the
// deadline is abandoned and ErrTimeout is returned; the skill goroutine is
// left to observe ctx cancellation on its own. Panics are returned as
// ErrPanic.
func (r *Registry) Run(ctx context.Context, task model.Task, merchant *model.Merchant, deps map[model.TaskID]*model.SkillResult) (any, error) {
	s, ok := r.skills[task.Action]
	if !ok {
		return nil, goerr.Wrap(ErrSkillNotFound, "cannot run task",
			goerr.V("task_id", task.ID), goerr.V("action", task.Action))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: goerr.Wrap(ErrPanic, fmt.Sprint(p),
					goerr.V("task_id", task.ID), goerr.V("action", task.Action))}
			}
		}()
		data, err := s.Run(ctx, &Input{
			Merchant:     merchant,
			Params:       task.Params,
			Dependencies: deps,
		})
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, goerr.Wrap(out.err, "skill failed",
				goerr.V("task_id", task.ID), goerr.V("action", task.Action))
		}
		return out.data, nil
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, goerr.Wrap(ctx.Err(), "skill cancelled",
				goerr.V("task_id", task.ID), goerr.V("action", task.Action))
		}
		return nil, goerr.Wrap(ErrTimeout, "skill did not finish in time",
			goerr.V("task_id", task.ID), goerr.V("action", task.Action), goerr.V("timeout", r.timeout))
	}
}
