package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/adapters/httpapi"
	"github.com/inboxkit/email-enricher/internal/config"
	"github.com/inboxkit/email-enricher/internal/core"
	"github.com/inboxkit/email-enricher/internal/factory"
	"github.com/inboxkit/email-enricher/internal/logging"
	"github.com/inboxkit/email-enricher/internal/ports"
	"github.com/inboxkit/email-enricher/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient()
	}); err != nil {
		return nil, err
	}

	// Register stores
	if err := container.Provide(func(f *factory.StoreFactory) (*factory.Stores, error) {
		return f.CreateStores()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Stores) core.EnrichmentStore {
		return s.Enrichment
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Stores) core.TaskStore {
		return s.Tasks
	}); err != nil {
		return nil, err
	}

	// Register sanitizer
	if err := container.Provide(func(cfg *config.Config, tp *utils.TextProcessor) *core.ContentSanitizer {
		return core.NewContentSanitizer(cfg.GetEnrichment().MaxContentLength, tp)
	}); err != nil {
		return nil, err
	}

	// Register enrichment services
	if err := container.Provide(func(
		llm core.LLMClient,
		enrichmentStore core.EnrichmentStore,
		sanitizer *core.ContentSanitizer,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.EnrichmentService {
		return core.NewEnrichmentService(llm, enrichmentStore, sanitizer, logger, cfg.GetEnrichment().ClassifyTimeout)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewTaskExtractionService); err != nil {
		return nil, err
	}

	// Register batch scheduler
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *core.BatchScheduler {
		enrichCfg := cfg.GetEnrichment()
		return core.NewBatchScheduler(enrichCfg.ChunkSize, enrichCfg.ChunkDelay, logger)
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(
		cfg *config.Config,
		enrichment *core.EnrichmentService,
		extraction *core.TaskExtractionService,
		tasks core.TaskStore,
		logger *zap.Logger,
	) ports.APIServer {
		return httpapi.NewServer(cfg.GetServer(), enrichment, extraction, tasks, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
