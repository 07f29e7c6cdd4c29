package executor

import (
	"context"

	"github.com/m-mizutani/dashchat/pkg/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/m-mizutani/dashchat/pkg/service/executor")

func startPlanSpan(ctx context.Context, plan *model.ExecutionPlan) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "plan.execute")
	span.SetAttributes(attribute.Int("plan.tasks", len(plan.Tasks)))
	return ctx, span
}

func endPlanSpan(span trace.Span, batches int, err error) {
	span.SetAttributes(attribute.Int("plan.batches", batches))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func startTaskSpan(ctx context.Context, task model.Task, batch int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "task."+string(task.Action))
	span.SetAttributes(
		attribute.String("task.id", string(task.ID)),
		attribute.String("task.action", string(task.Action)),
		attribute.Int("task.batch", batch),
	)
	return ctx, span
}

func endTaskSpan(span trace.Span, result *model.SkillResult) {
	span.SetAttributes(
		attribute.Bool("task.success", result.Success),
		attribute.Int64("task.duration_ms", result.ExecutionTimeMs()),
	)
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	span.End()
}
