package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/config"
	"github.com/inboxkit/email-enricher/internal/core"
	"github.com/inboxkit/email-enricher/internal/factory"
	"github.com/inboxkit/email-enricher/internal/logging"
	"github.com/inboxkit/email-enricher/internal/utils"
)

var (
	// LLM provider flags
	provider    = flag.String("provider", "openai", "LLM provider (openai, gemini, bedrock)")
	maxTokens   = flag.Int("max-tokens", 4000, "Maximum tokens for LLM response")
	temperature = flag.Float64("temperature", 0.1, "Temperature for LLM generation")
	topP        = flag.Float64("top-p", 0.9, "Top-p for LLM generation")

	// OpenAI flags
	openaiAPIKey    = flag.String("openai-api-key", "", "API key for OpenAI")
	openaiModelName = flag.String("openai-model", "gpt-4o-mini", "OpenAI model name")

	// Gemini flags
	geminiAPIKey    = flag.String("gemini-api-key", "", "API key for Google Gemini")
	geminiModelName = flag.String("gemini-model", "gemini-pro", "Gemini model name")

	// Bedrock flags
	bedrockRegion  = flag.String("bedrock-region", "us-east-1", "AWS region for Bedrock")
	bedrockModelID = flag.String("bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Pipeline flags
	chunkSize  = flag.Int("chunk-size", 10, "Emails per provider call")
	chunkDelay = flag.Duration("chunk-delay", 2*time.Second, "Pause between chunks")
	storeType  = flag.String("store", "memory", "Store type (memory, sqlite, mysql)")
	sqlitePath = flag.String("sqlite-path", "./enrichment.db", "SQLite database path")
	mysqlDSN   = flag.String("mysql-dsn", "", "MySQL DSN")

	// Input flags
	inputFile    = flag.String("file", "", "JSON file with the email batch (array of {id, sender, subject, content})")
	labelsFile   = flag.String("labels", "", "Optional JSON file with custom labels (array of {name, prompt})")
	userEmail    = flag.String("user", "", "User email the batch belongs to")
	credential   = flag.String("credential", "", "Provider credential (falls back to the configured API key)")
	extractTasks = flag.Bool("extract-tasks", false, "Also run the task-extraction pass")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog      = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile   = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = createConfigFromFlags()
	}

	if *inputFile == "" || *userEmail == "" {
		fmt.Println("Both -file and -user are required")
		flag.Usage()
		os.Exit(1)
	}

	emails, err := readEmails(*inputFile)
	if err != nil {
		logger.Fatal("Failed to read email batch", zap.Error(err), zap.String("file", *inputFile))
	}

	var customLabels []core.CustomLabel
	if *labelsFile != "" {
		customLabels, err = readLabels(*labelsFile)
		if err != nil {
			logger.Fatal("Failed to read custom labels", zap.Error(err), zap.String("file", *labelsFile))
		}
	}

	cred := *credential
	if cred == "" {
		// The pipeline demands an explicit credential on every request;
		// fall back to the configured provider key.
		switch cfg.GetLLM().Provider {
		case "openai":
			cred = cfg.GetOpenAI().APIKey
		case "gemini":
			cred = cfg.GetGemini().APIKey
		case "bedrock":
			cred = "ambient" // bedrock authenticates via the AWS credential chain
		}
	}

	llmClient, err := factory.NewLLMFactory(cfg, logger).CreateLLMClient()
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	stores, err := factory.NewStoreFactory(cfg, logger).CreateStores()
	if err != nil {
		logger.Fatal("Failed to create stores", zap.Error(err))
	}

	enrichCfg := cfg.GetEnrichment()
	sanitizer := core.NewContentSanitizer(enrichCfg.MaxContentLength, utils.NewTextProcessor(logger))
	enrichment := core.NewEnrichmentService(llmClient, stores.Enrichment, sanitizer, logger, enrichCfg.ClassifyTimeout)
	extraction := core.NewTaskExtractionService(llmClient, stores.Enrichment, stores.Tasks, sanitizer, logger)
	scheduler := core.NewBatchScheduler(enrichCfg.ChunkSize, enrichCfg.ChunkDelay, logger)

	ctx := context.Background()

	fmt.Printf("=== Classifying %d emails ===\n", len(emails))
	classified := make(map[string]core.EnrichmentResult, len(emails))
	summary := scheduler.Run(ctx, emails, func(ctx context.Context, chunk []core.EmailMessage) error {
		result, err := enrichment.ClassifyBatch(ctx, core.BatchRequest{
			Emails:       chunk,
			Credential:   cred,
			UserEmail:    *userEmail,
			CustomLabels: customLabels,
		})
		if err != nil {
			return err
		}
		for _, r := range result.Results {
			classified[r.EmailID] = r
		}
		return nil
	})
	printRunSummary(summary)

	for _, email := range emails {
		result, ok := classified[email.ID]
		if !ok {
			fmt.Printf("%-24s (not enriched)\n", email.ID)
			continue
		}
		fmt.Printf("%-24s %-12s reply=%-5t labels=%v\n  %s\n",
			result.EmailID, result.Category, result.RequiresReply, result.AppliedLabels, result.Summary)
	}

	if *extractTasks {
		fmt.Printf("\n=== Extracting tasks ===\n")
		tasksCreated := 0
		summary = scheduler.Run(ctx, emails, func(ctx context.Context, chunk []core.EmailMessage) error {
			result, err := extraction.ExtractBatch(ctx, core.BatchRequest{
				Emails:       chunk,
				Credential:   cred,
				UserEmail:    *userEmail,
				CustomLabels: customLabels,
			})
			if err != nil {
				return err
			}
			tasksCreated += result.TasksCreated
			return nil
		})
		printRunSummary(summary)

		tasks, err := stores.Tasks.ListByUser(ctx, *userEmail)
		if err != nil {
			logger.Fatal("Failed to list tasks", zap.Error(err))
		}
		fmt.Printf("Created %d tasks this run, %d total:\n", tasksCreated, len(tasks))
		for _, task := range tasks {
			fmt.Printf("  [%s] %s (due: %s, urgent: %t)\n", task.EmailID, task.Title, task.Date, task.IsUrgent)
		}
	}

	if closer, ok := stores.Enrichment.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("llm.provider", *provider)

	v.Set("openai.api_key", *openaiAPIKey)
	v.Set("openai.model_name", *openaiModelName)
	v.Set("openai.max_tokens", *maxTokens)
	v.Set("openai.temperature", *temperature)
	v.Set("openai.top_p", *topP)

	v.Set("gemini.api_key", *geminiAPIKey)
	v.Set("gemini.model_name", *geminiModelName)
	v.Set("gemini.max_tokens", *maxTokens)
	v.Set("gemini.temperature", *temperature)
	v.Set("gemini.top_p", *topP)

	v.Set("bedrock.region", *bedrockRegion)
	v.Set("bedrock.model_id", *bedrockModelID)
	v.Set("bedrock.max_tokens", *maxTokens)
	v.Set("bedrock.temperature", *temperature)
	v.Set("bedrock.top_p", *topP)

	v.Set("enrichment.chunk_size", *chunkSize)
	v.Set("enrichment.chunk_delay", chunkDelay.String())

	v.Set("store.type", *storeType)
	v.Set("store.sqlite_path", *sqlitePath)
	v.Set("store.mysql_dsn", *mysqlDSN)

	return config.NewFromViper(v)
}

func readEmails(path string) ([]core.EmailMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var emails []core.EmailMessage
	if err := json.Unmarshal(data, &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

func readLabels(path string) ([]core.CustomLabel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []core.CustomLabel
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func printRunSummary(summary *core.RunSummary) {
	fmt.Printf("chunks=%d succeeded=%d rate_limited=%d failed=%d cancelled=%t\n",
		summary.Chunks, summary.Succeeded, summary.RateLimited, summary.Failed, summary.Cancelled)
}
