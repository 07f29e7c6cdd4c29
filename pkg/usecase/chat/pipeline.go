package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/repository"
	"github.com/m-mizutani/dashchat/pkg/service/boundary"
	"github.com/m-mizutani/dashchat/pkg/service/cache"
	"github.com/m-mizutani/dashchat/pkg/service/classifier"
	"github.com/m-mizutani/dashchat/pkg/service/confidence"
	"github.com/m-mizutani/dashchat/pkg/service/entity"
	"github.com/m-mizutani/dashchat/pkg/service/executor"
	"github.com/m-mizutani/dashchat/pkg/service/rewrite"
	"github.com/m-mizutani/dashchat/pkg/service/switcher"
	"github.com/m-mizutani/dashchat/pkg/service/validator"
	"github.com/m-mizutani/dashchat/pkg/skill"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel/attribute"
)

// Validation holds the output checks applied to a response. Aggregation is
// nil unless the question was an aggregation.
type Validation struct {
	Aggregation *validator.AggregationCheck `json:"aggregation,omitempty"`
	Citation    *validator.CitationCheck    `json:"citation,omitempty"`
}

// TurnResult is everything produced while answering one input. Fields of
// stages that did not run are nil; a refused input has only Boundary and
// Response set.
type TurnResult struct {
	TurnID      model.TurnID           `json:"turn_id"`
	Response    string                 `json:"response"`
	Confidence  *model.ConfidenceScore `json:"confidence,omitempty"`
	Boundary    *boundary.Decision     `json:"boundary"`
	Switch      *switcher.Decision     `json:"switch,omitempty"`
	Rewrite     *model.RewriteResult   `json:"rewrite,omitempty"`
	Intent      *model.IntentResult    `json:"intent,omitempty"`
	Entity      *model.EntityResult    `json:"entity,omitempty"`
	Plan        *model.ExecutionPlan   `json:"plan,omitempty"`
	Results     []*model.SkillResult   `json:"results,omitempty"`
	Aggregate   *Aggregate             `json:"aggregate,omitempty"`
	Uncertainty *boundary.Uncertainty  `json:"uncertainty,omitempty"`
	Validation  Validation             `json:"validation"`
	CacheHit    bool                   `json:"cache_hit"`
}

// Blocked reports whether the input was refused by the boundary check.
func (r *TurnResult) Blocked() bool {
	return r.Boundary != nil && !r.Boundary.Allowed
}

// PipelineInput wires the stages of a Pipeline. Only Repo is required;
// every other nil field gets its default implementation.
type PipelineInput struct {
	Repo       repository.Repository
	Boundary   *boundary.Checker
	Switcher   *switcher.Detector
	Rewriter   *rewrite.Rewriter
	Cache      *cache.Cache[*model.IntentResult]
	Classifier classifier.Classifier
	Resolver   *entity.Resolver
	Planner    *Planner
	Executor   *executor.Executor
	Evaluator  *confidence.Evaluator
	Responder  Responder
}

// Pipeline answers one input at a time. It reads the conversation context
// but never modifies it; Session applies the outcome between turns.
type Pipeline struct {
	repo       repository.Repository
	boundary   *boundary.Checker
	switcher   *switcher.Detector
	rewriter   *rewrite.Rewriter
	cache      *cache.Cache[*model.IntentResult]
	classifier classifier.Classifier
	resolver   *entity.Resolver
	planner    *Planner
	executor   *executor.Executor
	evaluator  *confidence.Evaluator
	responder  Responder
}

func NewPipeline(input PipelineInput) (*Pipeline, error) {
	if input.Repo == nil {
		return nil, goerr.New("repository is required")
	}

	p := &Pipeline{
		repo:       input.Repo,
		boundary:   input.Boundary,
		switcher:   input.Switcher,
		rewriter:   input.Rewriter,
		cache:      input.Cache,
		classifier: input.Classifier,
		resolver:   input.Resolver,
		planner:    input.Planner,
		executor:   input.Executor,
		evaluator:  input.Evaluator,
		responder:  input.Responder,
	}

	if p.boundary == nil {
		p.boundary = boundary.New()
	}
	if p.switcher == nil {
		p.switcher = switcher.New(input.Repo)
	}
	if p.rewriter == nil {
		p.rewriter = rewrite.New()
	}
	if p.cache == nil {
		c, err := cache.New[*model.IntentResult]()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create intent cache")
		}
		p.cache = c
	}
	if p.classifier == nil {
		p.classifier = classifier.NewKeyword()
	}
	if p.resolver == nil {
		p.resolver = entity.NewResolver(input.Repo)
	}
	if p.planner == nil {
		p.planner = NewPlanner()
	}
	if p.executor == nil {
		registry := skill.NewRegistry(skill.WithSkills(skill.Defaults(input.Repo)...))
		p.executor = executor.New(registry)
	}
	if p.evaluator == nil {
		p.evaluator = confidence.New(confidence.DefaultConfig())
	}
	if p.responder == nil {
		p.responder = TemplateResponder{}
	}

	return p, nil
}

// CacheStats reports the state of the intent cache.
func (p *Pipeline) CacheStats() cache.Stats {
	return p.cache.Stats()
}

// StartCleanup removes expired cache entries every interval until Stop is
// called. A non-positive interval uses the cache TTL.
func (p *Pipeline) StartCleanup(ctx context.Context, interval time.Duration) {
	p.cache.Start(ctx, interval)
}

func (p *Pipeline) Stop() {
	p.cache.Stop()
}

// ProcessTurn answers raw in the conversation described by convCtx. A
// refused input, a low-confidence query and failed skills all produce a
// normal TurnResult. An error is returned only when a stage could not run
// at all, such as an unreachable repository or an unschedulable plan.
func (p *Pipeline) ProcessTurn(ctx context.Context, raw string, convCtx *model.ConversationContext) (*TurnResult, error) {
	result := &TurnResult{TurnID: model.NewTurnID()}
	logger := logging.From(ctx).With("turn_id", result.TurnID)
	ctx = logging.With(ctx, logger)

	ctx, span := tracer.Start(ctx, "turn")
	defer span.End()
	span.SetAttributes(attribute.String("turn.id", string(result.TurnID)))

	if err := stage(ctx, "boundary", func(ctx context.Context) error {
		decision, err := p.boundary.Check(ctx, raw)
		result.Boundary = decision
		return err
	}); err != nil {
		return nil, err
	}
	if result.Blocked() {
		result.Response = refusal(result.Boundary)
		span.SetAttributes(attribute.Bool("turn.blocked", true))
		return result, nil
	}

	local := convCtx.Clone()
	if err := stage(ctx, "switch", func(ctx context.Context) error {
		decision, err := p.switcher.Detect(ctx, raw, local)
		result.Switch = decision
		return err
	}); err != nil {
		return nil, err
	}
	if result.Switch.ShouldSwitch {
		// An unnamed target leaves the turn without a subject.
		local.SetSubject(result.Switch.TargetID, result.Switch.TargetName)
		logger.Info("context switch detected",
			"target", result.Switch.TargetName, "reason", result.Switch.Reason)
	}

	result.Rewrite = p.rewriter.Rewrite(raw, local)
	query := result.Rewrite.Normalized

	if err := stage(ctx, "classify", func(ctx context.Context) error {
		if cached, ok := p.cache.Get(query); ok {
			result.Intent = cached
			result.CacheHit = true
			return nil
		}
		intent, err := p.classifier.Classify(ctx, query, local)
		if err != nil {
			return goerr.Wrap(err, "failed to classify query", goerr.V("query", query))
		}
		// The cache is keyed by text only, so an intent borrowed from this
		// conversation would leak into others.
		if !intent.FromContext {
			p.cache.Set(query, intent)
		}
		result.Intent = intent
		return nil
	}); err != nil {
		return nil, err
	}
	logger.Debug("query classified",
		"intent", result.Intent.Intent, "confidence", result.Intent.Confidence, "cache_hit", result.CacheHit)

	var merchant *model.Merchant
	if err := stage(ctx, "resolve", func(ctx context.Context) error {
		resolved, err := p.resolver.Resolve(ctx, query, local)
		if err != nil {
			return err
		}
		result.Entity = resolved
		if !resolved.Matched {
			return nil
		}

		merchant, err = p.repo.GetMerchant(ctx, resolved.ID)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("resolved merchant is not in the catalog", "merchant_id", resolved.ID)
			result.Entity = model.NewEntityResult("", "", 0, false)
			return nil
		}
		return err
	}); err != nil {
		return nil, err
	}

	result.Plan = p.planner.Plan(result.Intent, result.Entity)
	if err := result.Plan.Validate(); err != nil {
		return nil, goerr.Wrap(err, "planner produced an invalid plan", goerr.V("intent", result.Intent.Intent))
	}

	var merchants []*model.Merchant
	if err := stage(ctx, "execute", func(ctx context.Context) error {
		if result.Intent.Intent == model.IntentAggregation {
			var err error
			if merchants, err = p.repo.ListMerchants(ctx); err != nil {
				return goerr.Wrap(err, "failed to list merchants")
			}
			result.Aggregate, err = aggregate(ctx, merchants)
			return err
		}

		results, err := p.executor.Execute(ctx, result.Plan, merchant)
		result.Results = results
		if err != nil {
			var depErr *executor.DependencyError
			if errors.As(err, &depErr) {
				result.Results = depErr.Completed
			}
			return err
		}
		return nil
	}, attribute.Int("plan.tasks", len(result.Plan.Tasks))); err != nil {
		return nil, err
	}

	result.Confidence = p.evaluator.Evaluate(result.Rewrite, result.Intent, result.Entity, result.Plan, result.Results)
	result.Uncertainty = p.boundary.CheckUncertainty(query, result.Confidence.Overall)
	span.SetAttributes(attribute.Float64("turn.confidence", result.Confidence.Overall))

	if result.Confidence.NeedsConfirmation {
		logger.Info("asking for confirmation", "ambiguities", result.Confidence.Ambiguities)
		result.Response = confirmation(result.Confidence.Ambiguities)
		return result, nil
	}

	in := &ResponseInput{
		Query:     query,
		Intent:    result.Intent.Intent,
		Merchant:  merchant,
		Results:   result.Results,
		Aggregate: result.Aggregate,
		Messages:  local.Messages,
	}
	_ = stage(ctx, "respond", func(ctx context.Context) error {
		text, err := p.responder.Respond(ctx, in)
		if err != nil {
			logger.Warn("responder failed, using summary", "error", err)
			text = Summarize(in)
		}
		result.Response = text
		return err
	})

	if result.Intent.Intent == model.IntentAggregation {
		names := make([]string, 0, len(merchants))
		for _, m := range merchants {
			names = append(names, m.Name)
		}
		result.Validation.Aggregation = validator.ValidateAggregationResponse(result.Response, names)
		if !result.Validation.Aggregation.Valid {
			logger.Warn("unknown merchant names removed from response",
				"names", result.Validation.Aggregation.FabricatedNames)
		}
		result.Response = result.Validation.Aggregation.SanitizedResponse
	}

	result.Validation.Citation = validator.ValidateCaseCitation(result.Response, hasCases(result.Results))
	result.Response = result.Validation.Citation.EnhancedResponse

	if result.Uncertainty.NeedsHuman {
		result.Response += "\n\n提示：" + strings.Join(result.Uncertainty.Reasons, "；") + "。"
	}

	return result, nil
}

func hasCases(results []*model.SkillResult) bool {
	for _, r := range results {
		if r == nil || !r.Success {
			continue
		}
		if m, ok := r.Data.(*skill.CaseMatches); ok && len(m.Matches) > 0 {
			return true
		}
	}
	return false
}

func refusal(d *boundary.Decision) string {
	if d.SuggestedAction == "" {
		return d.Reason
	}
	return d.Reason + "\n" + d.SuggestedAction
}

func confirmation(ambiguities []string) string {
	return "我不太确定你的意思：" + strings.Join(ambiguities, "；") + "。能再具体说明一下吗？"
}
