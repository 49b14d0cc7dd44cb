package bootstrap

import (
	"context"
	"os"
	"time"

	"triage_server/adapter/out/messaging"
	"triage_server/adapter/out/mongodb"
	"triage_server/adapter/out/persistence"
	"triage_server/adapter/out/provider"
	"triage_server/config"
	"triage_server/core/agent/llm"
	"triage_server/core/agent/rag"
	"triage_server/core/port/out"
	"triage_server/core/service/admin"
	"triage_server/core/service/kb"
	"triage_server/core/service/learning"
	"triage_server/core/service/observation"
	"triage_server/core/service/thread"
	"triage_server/core/service/triage"
	"triage_server/core/service/vendor"
	"triage_server/core/service/verify"
	"triage_server/infra/database"
	"triage_server/internal/stream"
	"triage_server/pkg/cache"
	"triage_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const consumerGroup = "triage-workers"

// Dependencies holds every constructed collaborator. The API and the
// worker each build their own instance; shared state lives in Postgres
// and Redis, not here.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	ThreadRepo      out.ThreadRepository
	MessageRepo     out.MessageRepository
	EventRepo       out.EventRepository
	DraftRepo       out.DraftRepository
	ObservationRepo out.ObservationRepository
	VendorRepo      out.VendorRequestRepository
	KBDocRepo       out.KBDocRepository
	KBChunkRepo     out.KBChunkRepository
	LearningRepo    out.LearningRepository
	SettingsRepo    out.SettingsRepository
	SyncStateRepo   out.SyncStateRepository
	RawRepo         out.RawMessageRepository

	// Collaborators
	MailProvider out.MailProviderPort
	Commerce     out.CommercePort
	CRM          out.CRMPort
	Producer     out.JobProducer
	Stream       *stream.RedisStream
	Cache        *cache.RedisCache

	// Agent
	LLMClient   *llm.Client
	VectorStore *rag.VectorStore
	Lexical     *rag.LexicalIndex
	Retriever   *rag.Retriever
	Indexer     *rag.Indexer

	// Services
	StateMachine  *thread.StateMachine
	ThreadService *thread.Service
	Verifier      *verify.Verifier
	Matcher       *vendor.Matcher
	Tracker       *observation.Tracker
	Pipeline      *triage.Pipeline
	DraftReview   *triage.DraftReview
	KBService     *kb.DocService
	Generator     *learning.Generator
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Postgres (pgxpool for the vector store and health checks)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Postgres (sqlx for the relational adapters)
	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })
	deps.Cache = cache.NewRedisCache(redisClient)

	// MongoDB for raw inbound payloads. Optional: without it the
	// normalizer keeps only the relational projection.
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed, raw payloads disabled: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			rawAdapter := mongodb.NewRawMessageAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := rawAdapter.EnsureIndexes(context.Background()); err != nil {
				logger.Warn("Failed to ensure MongoDB indexes: %v", err)
			}
			deps.RawRepo = rawAdapter
		}
	}

	// Job stream
	deps.Stream = stream.NewRedisStream(redisClient, consumerGroup)
	deps.Producer = messaging.NewRedisProducer(deps.Stream)

	// Repositories
	deps.ThreadRepo = persistence.NewThreadAdapter(sqlDB)
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.EventRepo = persistence.NewEventAdapter(sqlDB)
	deps.DraftRepo = persistence.NewDraftAdapter(sqlDB)
	deps.ObservationRepo = persistence.NewObservationAdapter(sqlDB)
	deps.VendorRepo = persistence.NewVendorRequestAdapter(sqlDB)
	deps.KBDocRepo = persistence.NewKBDocAdapter(sqlDB)
	deps.KBChunkRepo = persistence.NewKBChunkAdapter(sqlDB)
	deps.LearningRepo = persistence.NewLearningAdapter(sqlDB)
	deps.SettingsRepo = persistence.NewSettingsAdapter(sqlDB)
	deps.SyncStateRepo = persistence.NewSyncStateAdapter(sqlDB)

	// Mail provider
	if cfg.GoogleCredentialsFile != "" {
		credentials, err := os.ReadFile(cfg.GoogleCredentialsFile)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.MailProvider = provider.NewGmailAdapter(&provider.GmailConfig{
			CredentialsJSON: credentials,
			DefaultMailbox:  cfg.SupportMailbox,
		})
	} else {
		logger.Warn("GOOGLE_CREDENTIALS_FILE not set, mail provider disabled")
	}

	// Commerce platform
	if cfg.CommerceBaseURL != "" {
		deps.Commerce = provider.NewCommerceAdapter(&provider.CommerceConfig{
			BaseURL: cfg.CommerceBaseURL,
			APIKey:  cfg.CommerceAPIToken,
			Timeout: time.Duration(cfg.CommerceTimeoutSec) * time.Second,
		})
	} else {
		logger.Warn("COMMERCE_BASE_URL not set, customer verification disabled")
	}

	// CRM
	if cfg.CRMBaseURL != "" {
		deps.CRM = provider.NewCRMAdapter(&provider.CRMConfig{
			BaseURL: cfg.CRMBaseURL,
			APIKey:  cfg.CRMAPIToken,
			Timeout: time.Duration(cfg.CRMTimeoutSec) * time.Second,
		})
	}

	// LLM client
	var embedder out.EmbedderPort
	var llmPort out.LLMPort
	if cfg.OpenAIAPIKey != "" {
		deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.LLMModel,
			EmbeddingModel: cfg.EmbeddingModel,
			MaxTokens:      cfg.LLMMaxTokens,
			Temperature:    cfg.LLMTemperature,
		})
		embedder = deps.LLMClient
		llmPort = deps.LLMClient
	} else {
		logger.Warn("OPENAI_API_KEY not set, triage and learning disabled")
	}

	// Retrieval
	deps.VectorStore = rag.NewVectorStore(db)
	deps.Lexical = rag.NewLexicalIndex(sqlDB)
	deps.Retriever = rag.NewRetriever(deps.VectorStore, deps.Lexical, embedder)
	deps.Indexer = rag.NewIndexer(deps.KBChunkRepo, deps.VectorStore, embedder)

	// Core services
	deps.StateMachine = thread.NewStateMachine(deps.ThreadRepo, deps.EventRepo)
	deps.ThreadService = thread.NewService(deps.ThreadRepo, deps.MessageRepo, deps.EventRepo, deps.StateMachine)
	deps.Verifier = verify.NewVerifier(deps.Commerce, deps.ThreadRepo)
	deps.Matcher = vendor.NewMatcher(deps.VendorRepo, deps.Commerce, deps.EventRepo)
	deps.Tracker = observation.NewTracker(deps.ObservationRepo, deps.ThreadRepo, deps.EventRepo, deps.StateMachine)
	deps.KBService = kb.NewDocService(deps.KBDocRepo, deps.KBChunkRepo, deps.LearningRepo, deps.Producer)

	deps.Pipeline = triage.NewPipeline(triage.PipelineDeps{
		Threads:   deps.ThreadRepo,
		Messages:  deps.MessageRepo,
		Events:    deps.EventRepo,
		Drafts:    deps.DraftRepo,
		Settings:  deps.SettingsRepo,
		LLM:       llmPort,
		Retriever: deps.Retriever,
		Verifier:  deps.Verifier,
		Machine:   deps.StateMachine,
		Provider:  deps.MailProvider,
		Locker:    deps.Cache,
	})
	deps.DraftReview = triage.NewDraftReview(deps.DraftRepo, deps.Pipeline)

	deps.Generator = learning.NewGenerator(learning.GeneratorDeps{
		Threads:      deps.ThreadRepo,
		Messages:     deps.MessageRepo,
		Observations: deps.ObservationRepo,
		Proposals:    deps.LearningRepo,
		Miner:        miner(deps.LLMClient),
		Embedder:     embedder,
		Searcher:     deps.VectorStore,
	})

	return deps, cleanup, nil
}

// NewNormalizerFactory binds ingest normalizers to their mailbox.
func (d *Dependencies) NewNormalizerFactory() func(mailbox string) *thread.Normalizer {
	return func(mailbox string) *thread.Normalizer {
		return thread.NewNormalizer(d.ThreadRepo, d.MessageRepo, d.EventRepo, d.RawRepo, d.StateMachine, mailbox)
	}
}

// NewAdminService builds the settings and sync-control service. The
// worker passes its poll processor so a mailbox reset also clears the
// in-process failure latch; the API passes nil.
func (d *Dependencies) NewAdminService(latches admin.LatchResetter) *admin.Service {
	return admin.NewService(d.SettingsRepo, d.SyncStateRepo, latches)
}

// miner avoids handing a typed nil to the generator's interface field.
func miner(client *llm.Client) learning.KnowledgeMiner {
	if client == nil {
		return nil
	}
	return client
}
