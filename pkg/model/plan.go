package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrDuplicateTaskID   = goerr.New("duplicate task id")
	ErrUnknownDependency = goerr.New("task depends on unknown task")
	ErrDependencyCycle   = goerr.New("task dependencies form a cycle")
)

type TaskID string

// Action names a skill the executor dispatches a task to.
type Action string

const (
	ActionHealthAnalysis    Action = "health_analysis"
	ActionRiskDetection     Action = "risk_detection"
	ActionDiagnosis         Action = "diagnosis"
	ActionCaseMatching      Action = "case_matching"
	ActionSolutionSynthesis Action = "solution_synthesis"
)

// Task is one node of an ExecutionPlan. Priority is informational for the
// planner; the executor orders work only by DependsOn.
type Task struct {
	ID        TaskID         `json:"id"`
	Action    Action         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	DependsOn []TaskID       `json:"depends_on,omitempty"`
	Priority  int            `json:"priority"`
}

type ExecutionPlan struct {
	Tasks      []Task  `json:"tasks"`
	Confidence float64 `json:"confidence"`
}

// Validate checks that task IDs are unique, every dependency exists and the
// dependency graph is acyclic.
func (p *ExecutionPlan) Validate() error {
	if p == nil {
		return nil
	}

	index := make(map[TaskID]int, len(p.Tasks))
	for i, t := range p.Tasks {
		if _, ok := index[t.ID]; ok {
			return goerr.Wrap(ErrDuplicateTaskID, "invalid plan", goerr.V("task_id", t.ID))
		}
		index[t.ID] = i
	}
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := index[dep]; !ok {
				return goerr.Wrap(ErrUnknownDependency, "invalid plan",
					goerr.V("task_id", t.ID), goerr.V("depends_on", dep))
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(p.Tasks))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visiting:
			return goerr.Wrap(ErrDependencyCycle, "invalid plan", goerr.V("task_id", p.Tasks[i].ID))
		case done:
			return nil
		}
		state[i] = visiting
		for _, dep := range p.Tasks[i].DependsOn {
			if err := visit(index[dep]); err != nil {
				return err
			}
		}
		state[i] = done
		return nil
	}
	for i := range p.Tasks {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}

// SkillResult is the outcome of exactly one task in one plan execution.
type SkillResult struct {
	TaskID        TaskID        `json:"task_id"`
	Action        Action        `json:"action"`
	Success       bool          `json:"success"`
	Data          any           `json:"data,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// ExecutionTimeMs returns the wall-clock duration in milliseconds.
func (r *SkillResult) ExecutionTimeMs() int64 {
	return r.ExecutionTime.Milliseconds()
}
