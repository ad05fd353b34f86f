package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kelechi-nwosu/enrichd/internal/config"
	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/core/codec"
	"github.com/kelechi-nwosu/enrichd/internal/core/drive"
	"github.com/kelechi-nwosu/enrichd/internal/core/enrich"
	"github.com/kelechi-nwosu/enrichd/internal/core/llm"
	objectclient "github.com/kelechi-nwosu/enrichd/internal/core/object-client"
	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
	"github.com/kelechi-nwosu/enrichd/internal/core/vectordb"
	"github.com/kelechi-nwosu/enrichd/internal/services"
)

// App owns the wired components and their lifecycles.
type App struct {
	Store         core.VectorStore
	ObjectClient  core.ObjectClient
	Drive         core.DriveClient
	Processor     *services.NotificationProcessor
	Subscriptions *services.SubscriptionManager
	Server        *Server

	logger *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := vectordb.NewStore(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	logger.Info("vector store initialized and bootstrapped")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init object client: %w", err)
	}
	logger.Info("object client initialized")

	driveClient := drive.NewClient(cfg.DriveBaseURL, cfg.DriveToken, logger)

	retryPolicy := retry.NewPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay, logger)

	var (
		embedder core.EmbeddingProvider
		llmProv  core.LLMProvider
		enricher *enrich.Enricher
		answerer *services.QueryAnswerer
	)
	if cfg.AIAPIKey != "" {
		geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
		geminiLLM, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("init inference provider: %w", err)
		}
		embedder, llmProv = geminiEmbedder, geminiLLM
		enricher = enrich.NewEnricher(geminiLLM, objClient, cfg.BucketName, retryPolicy, logger)
		answerer = services.NewQueryAnswerer(embedder, llmProv, store, retryPolicy, logger, services.QueryConfig{
			MaxCandidates: cfg.QueryMaxCandidates,
		})
	} else {
		logger.Warn("GEMINI_API_KEY not set; running with rule-based sectioning and no query endpoint")
	}

	cdc := codec.NewDocconvCodec()
	assembler := enrich.NewAssembler(cdc, "enrichd")

	var indexer *enrich.Indexer
	if embedder != nil {
		indexer = enrich.NewIndexer(embedder, store, retryPolicy, logger)
	}

	// The interface-typed enricher must stay nil when unconfigured so the
	// processor falls back to the rule-based sectioner.
	processor := newProcessor(driveClient, cdc, enricher, assembler, indexer, objClient, retryPolicy, logger, cfg)

	subscriptions := services.NewSubscriptionManager(driveClient, retryPolicy, logger, services.SubscriptionConfig{
		Lifetime:        cfg.SubscriptionLifetime,
		RenewThreshold:  cfg.RenewThreshold,
		CheckInterval:   cfg.RenewCheckInterval,
		NotificationURL: cfg.NotificationURL,
		ClientState:     cfg.ClientState,
	})
	subscriptions.Start(ctx)

	server := NewServer(cfg, processor, subscriptions, driveClient, answerer, logger)

	return &App{
		Store:         store,
		ObjectClient:  objClient,
		Drive:         driveClient,
		Processor:     processor,
		Subscriptions: subscriptions,
		Server:        server,
		logger:        logger,
	}, nil
}

// newProcessor keeps the unconfigured AI path on literal nils so the
// processor's fallbacks engage; a typed nil pointer would defeat them.
func newProcessor(
	driveClient core.DriveClient,
	cdc codec.Codec,
	enricher *enrich.Enricher,
	assembler *enrich.Assembler,
	indexer *enrich.Indexer,
	archive core.ObjectClient,
	retryPolicy retry.Policy,
	logger *zap.Logger,
	cfg *config.Config,
) *services.NotificationProcessor {
	procCfg := services.ProcessorConfig{
		ArchiveBucket: cfg.BucketName,
		TargetFolder:  cfg.TargetFolder,
		ClientState:   cfg.ClientState,
	}
	if enricher == nil || indexer == nil {
		return services.NewNotificationProcessor(driveClient, cdc, nil, assembler, nil, nil, archive, retryPolicy, logger, procCfg)
	}
	return services.NewNotificationProcessor(driveClient, cdc, enricher, assembler, indexer, nil, archive, retryPolicy, logger, procCfg)
}

func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
