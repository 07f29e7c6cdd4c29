package chat

import (
	"github.com/m-mizutani/dashchat/pkg/model"
)

const (
	templatePlanConfidence  = 1.0
	noSubjectPlanConfidence = 0.5
	fallbackPlanConfidence  = 0.8

	defaultCaseLimit = 3
)

type taskTemplate struct {
	id        model.TaskID
	action    model.Action
	dependsOn []model.TaskID
	params    map[string]any
}

var planTemplates = map[model.Intent][]taskTemplate{
	model.IntentHealthCheck: {
		{id: "health", action: model.ActionHealthAnalysis},
	},
	model.IntentRiskQuery: {
		{id: "risk", action: model.ActionRiskDetection},
	},
	model.IntentDiagnosis: {
		{id: "health", action: model.ActionHealthAnalysis},
		{id: "risk", action: model.ActionRiskDetection},
		{id: "diagnosis", action: model.ActionDiagnosis, dependsOn: []model.TaskID{"health", "risk"}},
		{id: "cases", action: model.ActionCaseMatching, dependsOn: []model.TaskID{"diagnosis"},
			params: map[string]any{"limit": defaultCaseLimit}},
	},
	model.IntentSolution: {
		{id: "risk", action: model.ActionRiskDetection},
		{id: "diagnosis", action: model.ActionDiagnosis, dependsOn: []model.TaskID{"risk"}},
		{id: "cases", action: model.ActionCaseMatching, dependsOn: []model.TaskID{"diagnosis"},
			params: map[string]any{"limit": defaultCaseLimit}},
		{id: "solution", action: model.ActionSolutionSynthesis, dependsOn: []model.TaskID{"diagnosis", "cases"}},
	},
}

// Planner turns a classified query into an ExecutionPlan.
type Planner struct{}

func NewPlanner() *Planner {
	return &Planner{}
}

// Plan builds the task graph for intent. Intents about one merchant get an
// empty, low-confidence plan when no merchant was resolved; aggregation and
// general questions need no skills and get an empty plan.
func (p *Planner) Plan(intent *model.IntentResult, entity *model.EntityResult) *model.ExecutionPlan {
	templates, ok := planTemplates[intent.Intent]
	if !ok {
		conf := fallbackPlanConfidence
		if intent.Intent == model.IntentAggregation {
			conf = templatePlanConfidence
		}
		return &model.ExecutionPlan{Tasks: []model.Task{}, Confidence: conf}
	}

	if entity == nil || !entity.Matched {
		return &model.ExecutionPlan{Tasks: []model.Task{}, Confidence: noSubjectPlanConfidence}
	}

	tasks := make([]model.Task, 0, len(templates))
	for i, t := range templates {
		task := model.Task{
			ID:        t.id,
			Action:    t.action,
			DependsOn: append([]model.TaskID(nil), t.dependsOn...),
			Priority:  len(templates) - i,
			Params:    map[string]any{"merchant_id": string(entity.ID)},
		}
		for k, v := range t.params {
			task.Params[k] = v
		}
		tasks = append(tasks, task)
	}

	return &model.ExecutionPlan{Tasks: tasks, Confidence: templatePlanConfidence}
}
