package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/adapter"
	"github.com/m-mizutani/omoide/pkg/index"
	"github.com/m-mizutani/omoide/pkg/interfaces"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/policy"
	"github.com/m-mizutani/omoide/pkg/repository"
	"github.com/m-mizutani/omoide/pkg/usecase/answer"
	"github.com/m-mizutani/omoide/pkg/usecase/indexer"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	project    string
	database   string
	collection string

	// Search index
	indexPath string
	embedder  string
	dimension int64
	policyDir string

	// Adapters
	llm             string
	anthropicAPIKey string
	claudeModel     string
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	location        string

	gemini *adapter.Gemini
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("OMOIDE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("OMOIDE_LOG_FORMAT"),
			Destination: &cfg.logFormat,
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
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Firestore collection holding entries",
			Value:       repository.DefaultCollection,
			Sources:     cli.EnvVars("OMOIDE_COLLECTION"),
			Destination: &cfg.collection,
		},
	}
}

// indexFlags returns flags for the search index and its embedder
func indexFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "index-path",
			Usage:       "Path of the SQLite search index",
			Value:       "omoide.db",
			Sources:     cli.EnvVars("OMOIDE_INDEX_PATH"),
			Destination: &cfg.indexPath,
		},
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding provider (gemini, hash)",
			Value:       "gemini",
			Sources:     cli.EnvVars("OMOIDE_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding dimension; must match the existing index",
			Value:       768,
			Sources:     cli.EnvVars("OMOIDE_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego ingest policies",
			Sources:     cli.EnvVars("OMOIDE_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
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
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm",
			Usage:       "Language model provider (gemini, claude)",
			Value:       "gemini",
			Sources:     cli.EnvVars("OMOIDE_LLM"),
			Destination: &cfg.llm,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model name",
			Value:       adapter.DefaultClaudeModel,
			Sources:     cli.EnvVars("OMOIDE_CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generative model name",
			Value:       adapter.DefaultGenerativeModel,
			Sources:     cli.EnvVars("OMOIDE_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "location",
			Usage:       "Fixed current location; IP geolocation is used when empty",
			Sources:     cli.EnvVars("OMOIDE_LOCATION"),
			Destination: &cfg.location,
		},
	}
}

// withLogger attaches the configured logger to ctx
func (cfg *config) withLogger(ctx context.Context) context.Context {
	var opts []logging.Option
	if cfg.logFormat == "json" {
		opts = append(opts, logging.WithJSON())
	}
	logger := logging.New(cfg.logLevel, os.Stderr, opts...)
	return logging.With(ctx, logger)
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (*repository.Firestore, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required", goerr.T(model.ErrTagConfig))
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required", goerr.T(model.ErrTagConfig))
	}

	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database,
		repository.WithCollection(cfg.collection))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newGemini creates the Gemini adapter once and shares it between embedding and generation
func (cfg *config) newGemini(ctx context.Context) (*adapter.Gemini, error) {
	if cfg.gemini != nil {
		return cfg.gemini, nil
	}
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required", goerr.T(model.ErrTagConfig))
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required", goerr.T(model.ErrTagConfig))
	}

	opts := []adapter.GeminiOption{
		adapter.WithDimension(int(cfg.dimension)),
	}
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
	if err != nil {
		return nil, err
	}
	cfg.gemini = gemini
	return gemini, nil
}

// newEmbedder creates the configured embedding provider
func (cfg *config) newEmbedder(ctx context.Context) (interfaces.Embedder, error) {
	switch cfg.embedder {
	case "gemini":
		return cfg.newGemini(ctx)
	case "hash":
		return adapter.NewHashEmbedder(int(cfg.dimension))
	default:
		return nil, goerr.New("unsupported embedder",
			goerr.V("embedder", cfg.embedder),
			goerr.V("supported", []string{"gemini", "hash"}),
			goerr.T(model.ErrTagConfig))
	}
}

// newLLM creates the configured language model provider
func (cfg *config) newLLM(ctx context.Context) (interfaces.LLM, error) {
	switch cfg.llm {
	case "gemini":
		return cfg.newGemini(ctx)
	case "claude":
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required", goerr.T(model.ErrTagConfig))
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, adapter.WithClaudeModel(cfg.claudeModel))
	default:
		return nil, goerr.New("unsupported llm",
			goerr.V("llm", cfg.llm),
			goerr.V("supported", []string{"gemini", "claude"}),
			goerr.T(model.ErrTagConfig))
	}
}

// openIndex opens the search index with the configured dimension
func (cfg *config) openIndex(ctx context.Context) (*index.SQLite, error) {
	if cfg.indexPath == "" {
		return nil, goerr.New("index-path is required", goerr.T(model.ErrTagConfig))
	}
	return index.Open(ctx, cfg.indexPath, int(cfg.dimension))
}

// newAnswerer wires the index and providers for question answering
func (cfg *config) newAnswerer(ctx context.Context, searcher interfaces.Searcher, mode answer.Mode, k int) (*answer.Answerer, error) {
	llm, err := cfg.newLLM(ctx)
	if err != nil {
		return nil, err
	}

	opts := []answer.Option{
		answer.WithMode(mode),
		answer.WithK(k),
	}
	if mode != answer.ModeText {
		embedder, err := cfg.newEmbedder(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, answer.WithEmbedder(embedder))
	}

	return answer.New(searcher, llm, opts...)
}

// newIndexer wires the embedder, index and ingest policy into the indexing pipeline
func (cfg *config) newIndexer(ctx context.Context, idx *index.SQLite, opts ...indexer.Option) (*indexer.Indexer, error) {
	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	gate, err := policy.New(ctx, cfg.policyDir)
	if err != nil {
		return nil, err
	}
	opts = append(opts, indexer.WithPolicy(gate))

	return indexer.New(embedder, idx, opts...), nil
}

// newLocator returns a fixed locator when location is set, otherwise IP geolocation
func (cfg *config) newLocator() interfaces.Locator {
	if cfg.location != "" {
		return adapter.StaticLocator(cfg.location)
	}
	return adapter.NewIPLocator()
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context, bucketName string) (adapter.Storage, error) {
	storage, err := adapter.NewStorage(ctx, bucketName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}
