package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

// ErrUnresolvableDependency is returned when pending tasks remain but none
// of them has all its dependencies satisfied.
var ErrUnresolvableDependency = goerr.New("circular or missing task dependency")

// DependencyError carries the state of an execution aborted by
// ErrUnresolvableDependency. Completed holds every result produced before
// the abort.
type DependencyError struct {
	Pending   []model.TaskID
	Completed []*model.SkillResult
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%d task(s) cannot be scheduled: %v", len(e.Pending), e.Pending)
}

func (e *DependencyError) Unwrap() error {
	return ErrUnresolvableDependency
}

// Runner performs the work of one task. deps holds the result of every
// task listed in task.DependsOn.
type Runner interface {
	Run(ctx context.Context, task model.Task, merchant *model.Merchant, deps map[model.TaskID]*model.SkillResult) (any, error)
}

type Executor struct {
	runner Runner
	limit  int
}

type Option func(*Executor)

// WithParallelism caps the number of tasks running at once within a batch.
// Zero or a negative value means no cap.
func WithParallelism(n int) Option {
	return func(e *Executor) { e.limit = n }
}

func New(runner Runner, opts ...Option) *Executor {
	e := &Executor{runner: runner}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs plan in batches. Each batch holds every pending task whose
// dependencies all have a result, successful or not, and runs them
// concurrently; the next batch is computed only after the whole batch has
// finished. A task that fails, panics or times out yields a failed
// SkillResult and does not stop other tasks. Results are returned in plan
// order.
//
// Tasks already running are not cancelled when ctx is; they finish and
// record their outcome, and the runner is expected to observe ctx.
func (e *Executor) Execute(ctx context.Context, plan *model.ExecutionPlan, merchant *model.Merchant) ([]*model.SkillResult, error) {
	if plan == nil || len(plan.Tasks) == 0 {
		return []*model.SkillResult{}, nil
	}

	seen := make(map[model.TaskID]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		if seen[t.ID] {
			return nil, goerr.Wrap(model.ErrDuplicateTaskID, "cannot execute plan", goerr.V("task_id", t.ID))
		}
		seen[t.ID] = true
	}

	ctx, span := startPlanSpan(ctx, plan)
	logger := logging.From(ctx)

	pending := make([]model.Task, len(plan.Tasks))
	copy(pending, plan.Tasks)
	results := make(map[model.TaskID]*model.SkillResult, len(plan.Tasks))

	batch := 0
	for len(pending) > 0 {
		ready, rest := splitReady(pending, results)
		if len(ready) == 0 {
			err := e.dependencyError(rest, plan, results)
			logger.Error("plan cannot make progress", "error", err)
			endPlanSpan(span, batch, err)
			return nil, err
		}

		batch++
		logger.Debug("running batch", "batch", batch, "tasks", taskIDs(ready))

		for _, r := range e.runBatch(ctx, ready, merchant, results, batch) {
			results[r.TaskID] = r
		}
		pending = rest
	}

	endPlanSpan(span, batch, nil)
	return ordered(plan, results), nil
}

// splitReady partitions pending into tasks that can run now and the rest.
func splitReady(pending []model.Task, results map[model.TaskID]*model.SkillResult) (ready, rest []model.Task) {
	for _, t := range pending {
		ok := true
		for _, dep := range t.DependsOn {
			if _, done := results[dep]; !done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		} else {
			rest = append(rest, t)
		}
	}
	return ready, rest
}

func (e *Executor) runBatch(ctx context.Context, tasks []model.Task, merchant *model.Merchant, results map[model.TaskID]*model.SkillResult, batch int) []*model.SkillResult {
	out := make([]*model.SkillResult, len(tasks))

	// results is only written between batches, so tasks may read it
	// without locking.
	var eg errgroup.Group
	if e.limit > 0 {
		eg.SetLimit(e.limit)
	}

	for i, task := range tasks {
		deps := make(map[model.TaskID]*model.SkillResult, len(task.DependsOn))
		for _, dep := range task.DependsOn {
			deps[dep] = results[dep]
		}

		eg.Go(func() error {
			out[i] = e.runTask(ctx, task, merchant, deps, batch)
			return nil
		})
	}
	_ = eg.Wait()

	return out
}

func (e *Executor) runTask(ctx context.Context, task model.Task, merchant *model.Merchant, deps map[model.TaskID]*model.SkillResult, batch int) (result *model.SkillResult) {
	ctx, span := startTaskSpan(ctx, task, batch)
	logger := logging.From(ctx).With("task_id", task.ID, "action", task.Action)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			result = &model.SkillResult{
				TaskID: task.ID,
				Action: task.Action,
				Error:  fmt.Sprintf("panic: %v", p),
			}
		}
		result.ExecutionTime = time.Since(start)
		if result.Success {
			logger.Debug("task finished", "duration", result.ExecutionTime)
		} else {
			logger.Warn("task failed", "error", result.Error, "duration", result.ExecutionTime)
		}
		endTaskSpan(span, result)
	}()

	data, err := e.runner.Run(ctx, task, merchant, deps)
	if err != nil {
		return &model.SkillResult{
			TaskID: task.ID,
			Action: task.Action,
			Error:  err.Error(),
		}
	}
	return &model.SkillResult{
		TaskID:  task.ID,
		Action:  task.Action,
		Success: true,
		Data:    data,
	}
}

func (e *Executor) dependencyError(rest []model.Task, plan *model.ExecutionPlan, results map[model.TaskID]*model.SkillResult) error {
	depErr := &DependencyError{
		Pending:   taskIDs(rest),
		Completed: ordered(plan, results),
	}
	return goerr.Wrap(depErr, "plan execution aborted",
		goerr.V("pending", depErr.Pending),
		goerr.V("completed", len(depErr.Completed)))
}

// ordered returns results in the order the tasks appear in plan.
func ordered(plan *model.ExecutionPlan, results map[model.TaskID]*model.SkillResult) []*model.SkillResult {
	out := make([]*model.SkillResult, 0, len(results))
	for _, t := range plan.Tasks {
		if r, ok := results[t.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

func taskIDs(tasks []model.Task) []model.TaskID {
	ids := make([]model.TaskID, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
