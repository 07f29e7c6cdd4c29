package cli

import (
	"context"
	"io"
	"time"

	"github.com/m-mizutani/dashchat/pkg/adapter"
	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/repository"
	"github.com/m-mizutani/dashchat/pkg/service/boundary"
	"github.com/m-mizutani/dashchat/pkg/service/cache"
	"github.com/m-mizutani/dashchat/pkg/service/classifier"
	"github.com/m-mizutani/dashchat/pkg/service/confidence"
	"github.com/m-mizutani/dashchat/pkg/service/executor"
	"github.com/m-mizutani/dashchat/pkg/service/rewrite"
	"github.com/m-mizutani/dashchat/pkg/skill"
	"github.com/m-mizutani/dashchat/pkg/usecase/chat"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Repository
	project  string
	database string
	catalog  string

	// Adapters
	geminiProject  string
	geminiLocation string
	geminiModel    string
	historyBucket  string
	historyPrefix  string

	// Pipeline
	policyDir             string
	rewriteFloor          float64
	confirmationThreshold float64
	uncertaintyThreshold  float64
	cacheTTL              time.Duration
	cacheSize             int64
	parallelism           int64
	skillTimeout          time.Duration
}

// globalFlags returns repository flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "catalog",
			Aliases:     []string{"c"},
			Usage:       "Path to a YAML merchant catalog; used instead of Firestore when set",
			Sources:     cli.EnvVars("DASHCHAT_CATALOG"),
			Destination: &cfg.catalog,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini; rule-based classification and templates are used when empty",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// pipelineFlags returns thresholds and limits of the pipeline
func pipelineFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego files adding boundary rules (package boundary, deny set)",
			Sources:     cli.EnvVars("DASHCHAT_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.FloatFlag{
			Name:        "rewrite-floor",
			Usage:       "Lowest confidence a rewrite can score",
			Value:       rewrite.DefaultFloor,
			Sources:     cli.EnvVars("DASHCHAT_REWRITE_FLOOR"),
			Destination: &cfg.rewriteFloor,
		},
		&cli.FloatFlag{
			Name:        "confirmation-threshold",
			Usage:       "Overall confidence under which an ambiguous query is confirmed with the user",
			Value:       confidence.DefaultConfig().ConfirmationThreshold,
			Sources:     cli.EnvVars("DASHCHAT_CONFIRMATION_THRESHOLD"),
			Destination: &cfg.confirmationThreshold,
		},
		&cli.FloatFlag{
			Name:        "uncertainty-threshold",
			Usage:       "Overall confidence under which human review is recommended",
			Value:       boundary.DefaultUncertaintyThreshold,
			Sources:     cli.EnvVars("DASHCHAT_UNCERTAINTY_THRESHOLD"),
			Destination: &cfg.uncertaintyThreshold,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "Lifetime of cached classifications",
			Value:       cache.DefaultTTL,
			Sources:     cli.EnvVars("DASHCHAT_CACHE_TTL"),
			Destination: &cfg.cacheTTL,
		},
		&cli.IntFlag{
			Name:        "cache-size",
			Usage:       "Maximum number of cached classifications",
			Value:       cache.DefaultMaxSize,
			Sources:     cli.EnvVars("DASHCHAT_CACHE_SIZE"),
			Destination: &cfg.cacheSize,
		},
		&cli.IntFlag{
			Name:        "parallelism",
			Usage:       "Maximum number of skills running at once; 0 means unlimited",
			Sources:     cli.EnvVars("DASHCHAT_PARALLELISM"),
			Destination: &cfg.parallelism,
		},
		&cli.DurationFlag{
			Name:        "skill-timeout",
			Usage:       "Deadline of a single skill invocation",
			Value:       skill.DefaultTimeout,
			Sources:     cli.EnvVars("DASHCHAT_SKILL_TIMEOUT"),
			Destination: &cfg.skillTimeout,
		},
	}
}

// historyFlags returns flags for transcript export
func historyFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "history-bucket",
			Usage:       "Cloud Storage bucket for conversation transcripts; export is disabled when empty",
			Sources:     cli.EnvVars("DASHCHAT_HISTORY_BUCKET"),
			Destination: &cfg.historyBucket,
		},
		&cli.StringFlag{
			Name:        "history-prefix",
			Usage:       "Object name prefix in the history bucket",
			Sources:     cli.EnvVars("DASHCHAT_HISTORY_PREFIX"),
			Destination: &cfg.historyPrefix,
		},
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newRepository creates a repository from the YAML catalog or Firestore.
// The returned closer releases the client.
func (cfg *config) newRepository() (repository.Repository, io.Closer, error) {
	if cfg.catalog != "" {
		repo, err := repository.LoadYAML(cfg.catalog)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to load catalog")
		}
		return repo, nopCloser{}, nil
	}

	if cfg.project == "" {
		return nil, nil, goerr.New("either catalog or project is required")
	}
	if cfg.database == "" {
		return nil, nil, goerr.New("database is required")
	}

	repo, err := repository.New(cfg.project, cfg.database)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, repo, nil
}

// newGemini creates a Gemini adapter, or nil when Gemini is not configured
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, nil
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// newStorage creates a Storage adapter, or nil when export is disabled
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.historyBucket == "" {
		return nil, nil
	}

	storage, err := adapter.NewStorage(ctx, cfg.historyBucket, adapter.WithPrefix(cfg.historyPrefix))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newBoundary creates the boundary checker with optional Rego policies
func (cfg *config) newBoundary(ctx context.Context) (*boundary.Checker, error) {
	opts := []boundary.Option{boundary.WithUncertaintyThreshold(cfg.uncertaintyThreshold)}
	if cfg.policyDir != "" {
		policy, err := boundary.LoadPolicy(ctx, cfg.policyDir)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load boundary policy")
		}
		if policy != nil {
			opts = append(opts, boundary.WithPolicy(policy))
		}
	}
	return boundary.New(opts...), nil
}

// newPipeline wires every stage from the configuration
func (cfg *config) newPipeline(ctx context.Context, repo repository.Repository) (*chat.Pipeline, error) {
	if cfg.rewriteFloor < 0 || cfg.rewriteFloor > 1 {
		return nil, goerr.New("rewrite-floor must be between 0 and 1", goerr.V("rewrite_floor", cfg.rewriteFloor))
	}
	if cfg.confirmationThreshold < 0 || cfg.confirmationThreshold > 1 {
		return nil, goerr.New("confirmation-threshold must be between 0 and 1",
			goerr.V("confirmation_threshold", cfg.confirmationThreshold))
	}

	checker, err := cfg.newBoundary(ctx)
	if err != nil {
		return nil, err
	}

	intentCache, err := cache.New[*model.IntentResult](cache.WithTTL(cfg.cacheTTL), cache.WithMaxSize(int(cfg.cacheSize)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cache")
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	var (
		intentClassifier classifier.Classifier = classifier.NewKeyword()
		responder        chat.Responder        = chat.TemplateResponder{}
	)
	if gemini != nil {
		intentClassifier = &classifier.Fallback{
			Primary:   classifier.NewGemini(gemini),
			Secondary: classifier.NewKeyword(),
		}
		responder = chat.NewGeminiResponder(gemini)
	} else {
		logging.From(ctx).Info("gemini is not configured, using rule-based classification and templates")
	}

	evalCfg := confidence.DefaultConfig()
	evalCfg.ConfirmationThreshold = cfg.confirmationThreshold

	registry := skill.NewRegistry(
		skill.WithTimeout(cfg.skillTimeout),
		skill.WithSkills(skill.Defaults(repo)...),
	)

	return chat.NewPipeline(chat.PipelineInput{
		Repo:       repo,
		Boundary:   checker,
		Rewriter:   rewrite.New(rewrite.WithFloor(cfg.rewriteFloor)),
		Cache:      intentCache,
		Classifier: intentClassifier,
		Executor:   executor.New(registry, executor.WithParallelism(int(cfg.parallelism))),
		Evaluator:  confidence.New(evalCfg),
		Responder:  responder,
	})
}
