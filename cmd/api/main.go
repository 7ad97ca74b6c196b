package main

import (
	"context"
	"log"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-sql-driver/mysql"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"newschat-backend/internal/api"
	chat_module "newschat-backend/internal/api/modules/chat"
	chatservice "newschat-backend/internal/chat"
	"newschat-backend/internal/gateway"
	"newschat-backend/internal/ingest"
	"newschat-backend/internal/knowledge"
	"newschat-backend/internal/lifecycle"
	"newschat-backend/internal/scheduler"
	"newschat-backend/internal/stores/session"
	"newschat-backend/internal/stores/transcript"
	"newschat-backend/pkg/utils"
)

// Start the API server
func main() {
	// Find env file
	envFile := ".env"
	if os.Getenv("ENV_FILE") != "" {
		envFile = os.Getenv("ENV_FILE")
	}

	// Load global config
	cfg := utils.NewConfigFromEnv(envFile)

	ctx := context.Background()

	sessions := makeSessionStore(ctx, cfg)
	transcripts := makeTranscriptStore(cfg)

	storeTimeout := time.Duration(cfg.GetIntWithDefault("STORE_TIMEOUT_SECONDS", 10)) * time.Second
	coordinator := lifecycle.New(sessions, transcripts, storeTimeout)

	openaiClient := openai.NewClient(option.WithAPIKey(cfg.Get("OPENAI_API_KEY")))

	retriever, index := makeKnowledgeStore(ctx, cfg, openaiClient)

	systemPrompt := utils.LoadPromptWithFallback(cfg.Get("SYSTEM_PROMPT_FILE"), chatservice.DefaultSystemPrompt)
	generator := chatservice.NewOpenAIGenerator(openaiClient, cfg.Get("CHAT_MODEL"))
	chatSvc := chatservice.NewService(
		sessions,
		retriever,
		generator,
		systemPrompt,
		cfg.GetIntWithDefault("MAX_HISTORY_LENGTH", 20),
		cfg.GetIntWithDefault("RETRIEVAL_TOP_K", 4),
	)

	// Background jobs
	manager := scheduler.NewManager()
	registerJobs(cfg, manager, coordinator, sessions, index)
	manager.Start()
	defer manager.Stop()

	// Start
	api.Start(api.Config{
		Port:           cfg.GetWithDefault("API_PORT", "8080"),
		AllowedOrigins: cfg.GetWithDefault("CORS_ALLOWED_ORIGINS", "*"),
		APIKey:         cfg.Get("API_KEY"),
	}, api.Deps{
		Chat:    chat_module.NewController(sessions, transcripts, coordinator, chatSvc),
		Gateway: gateway.NewHandler(chatSvc, sessions, coordinator, cfg.Get("DEV_MODE") == "true"),
	})
}

// makeSessionStore selects the ephemeral store from SESSION_STORE
func makeSessionStore(ctx context.Context, cfg *utils.Config) session.Store {
	ttl := time.Duration(cfg.GetIntWithDefault("SESSION_TTL_SECONDS", 3600)) * time.Second

	switch cfg.GetWithDefault("SESSION_STORE", "memory") {
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("[MAIN]: Failed to load AWS config: %v", err)
		}
		store, err := session.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.GetWithDefault("DYNAMO_TABLE", "chat-sessions"), ttl)
		if err != nil {
			log.Fatalf("[MAIN]: Failed to create session store: %v", err)
		}
		return store

	default:
		return session.NewMemoryStore(ttl)
	}
}

// makeTranscriptStore connects to MySQL when configured, otherwise keeps
// transcripts in memory
func makeTranscriptStore(cfg *utils.Config) transcript.Store {
	dbConfig := mysql.Config{
		User:      cfg.Get("MYSQL_USER"),
		Passwd:    cfg.Get("MYSQL_ROOT_PASSWORD"),
		Net:       "tcp",
		Addr:      cfg.Get("MYSQL_HOST") + ":" + cfg.GetWithDefault("MYSQL_PORT", "3306"),
		DBName:    cfg.Get("MYSQL_DATABASE"),
		ParseTime: true,
	}

	if dbConfig.DBName == "" {
		log.Println("[MAIN]: Warning, MYSQL_DATABASE not set, using in-memory transcript store (data will not persist across restarts)")
		return transcript.NewMemoryStore()
	}

	store, err := transcript.NewMySqlStore(dbConfig.FormatDSN())
	if err != nil {
		log.Fatalf("[MAIN]: Failed to create transcript store: %v", err)
	}
	return store
}

// makeKnowledgeStore opens the pgvector-backed news index when DATABASE_URL
// is set. Without it the assistant answers ungrounded.
func makeKnowledgeStore(ctx context.Context, cfg *utils.Config, client openai.Client) (chatservice.Retriever, *knowledge.Store) {
	databaseURL := cfg.Get("DATABASE_URL")
	if databaseURL == "" {
		log.Println("[MAIN]: Warning, DATABASE_URL not set, news retrieval disabled")
		return nil, nil
	}

	pool, err := knowledge.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatalf("[MAIN]: Failed to connect to knowledge database: %v", err)
	}

	embedder := knowledge.NewOpenAIEmbedder(client, cfg.Get("EMBEDDING_MODEL"))
	store, err := knowledge.NewStore(pool, embedder, cfg.GetIntWithDefault("EMBEDDING_DIMENSIONS", 1536))
	if err != nil {
		log.Fatalf("[MAIN]: Failed to create knowledge store: %v", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("[MAIN]: Failed to prepare knowledge schema: %v", err)
	}

	return store, store
}

// registerJobs wires the recurring background jobs: feed ingestion, scheduled
// session cleanup and expired-session sweeping
func registerJobs(cfg *utils.Config, manager *scheduler.Manager, coordinator *lifecycle.Coordinator, sessions session.Store, index *knowledge.Store) {
	if index != nil {
		feedsFile := cfg.GetWithDefault("FEEDS_FILE", "feeds.yml")
		feeds, err := ingest.LoadFeeds(feedsFile)
		if err != nil {
			log.Printf("[MAIN]: Warning, could not load feeds from %s, ingestion disabled: %v", feedsFile, err)
		} else {
			svc := ingest.NewService(feeds, ingest.NewFetcher(30*time.Second), index)
			err := manager.Add(cfg.GetWithDefault("INGEST_CRON", "0 */6 * * *"), "feed-ingest", func(ctx context.Context) {
				if err := svc.RunOnce(ctx); err != nil {
					log.Printf("[MAIN]: feed ingestion failed: %v", err)
				}
			})
			if err != nil {
				log.Fatalf("[MAIN]: Failed to schedule feed ingestion: %v", err)
			}

			// Index the feeds once at startup so a fresh deployment has content
			go func() {
				if err := svc.RunOnce(context.Background()); err != nil {
					log.Printf("[MAIN]: initial feed ingestion failed: %v", err)
				}
			}()
		}
	}

	// Scheduled bulk termination is opt-in: it archives and clears every
	// active session, so it only suits deployments with natural quiet periods
	if spec := cfg.Get("CLEANUP_CRON"); spec != "" {
		err := manager.Add(spec, "session-cleanup", func(ctx context.Context) {
			ids, err := sessions.ListActive(ctx)
			if err != nil {
				log.Printf("[MAIN]: session cleanup could not list sessions: %v", err)
				return
			}
			coordinator.Cleanup(ctx, ids, "scheduled")
		})
		if err != nil {
			log.Fatalf("[MAIN]: Failed to schedule session cleanup: %v", err)
		}
	}

	// The memory store expires lazily, so sweep it periodically
	if mem, ok := sessions.(*session.MemoryStore); ok {
		err := manager.Add("*/10 * * * *", "session-sweep", func(ctx context.Context) {
			if removed := mem.Sweep(); removed > 0 {
				log.Printf("[MAIN]: swept %d expired sessions", removed)
			}
		})
		if err != nil {
			log.Fatalf("[MAIN]: Failed to schedule session sweep: %v", err)
		}
	}
}
