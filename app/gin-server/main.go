package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/basketvoice/config"
	"github.com/yoockh/basketvoice/internal/api/handlers"
	"github.com/yoockh/basketvoice/internal/api/middleware"
	"github.com/yoockh/basketvoice/internal/api/routes"
	"github.com/yoockh/basketvoice/internal/assistant"
	"github.com/yoockh/basketvoice/internal/cache"
	"github.com/yoockh/basketvoice/internal/logger"
	"github.com/yoockh/basketvoice/internal/providers/llm"
	"github.com/yoockh/basketvoice/internal/providers/stt"
	"github.com/yoockh/basketvoice/internal/providers/tts"
	"github.com/yoockh/basketvoice/internal/repositories"
	mongorepo "github.com/yoockh/basketvoice/internal/repositories/mongo"
	pgrepo "github.com/yoockh/basketvoice/internal/repositories/postgres"
	redisrepo "github.com/yoockh/basketvoice/internal/repositories/redis"
	sqliterepo "github.com/yoockh/basketvoice/internal/repositories/sqlite"
	"github.com/yoockh/basketvoice/internal/services"
	"github.com/yoockh/basketvoice/internal/storage"
	"github.com/yoockh/basketvoice/internal/tools"
	"github.com/yoockh/basketvoice/internal/utils"
	"github.com/yoockh/basketvoice/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAssistant()
	if err != nil {
		log.WithError(err).Fatal("assistant config")
	}
	loc, _ := cfg.Location()

	// Redis: events fan-out, archive queue, tool cache, rate limits
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("redis init")
	}
	rdb := config.RedisClient
	log.Info("redis connected")

	// Mongo: session audit + utterance log
	var (
		sessionSvc   services.SessionService
		utteranceSvc services.UtteranceService
	)
	if err := config.InitMongo(); err != nil {
		log.WithError(err).Warn("mongo unavailable, session audit disabled")
	} else if db, err := config.MongoDatabase(); err == nil {
		if err := config.EnsureMongoIndexes(); err != nil {
			log.WithError(err).Warn("mongo indexes")
		}
		sessionSvc = services.NewSessionService(mongorepo.NewSessionRepo(db))
		utteranceSvc = services.NewUtteranceService(mongorepo.NewUtteranceRepo(db), 7*24*time.Hour)
		defer config.CloseMongo(context.Background())
		log.Info("mongo connected")
	}

	// Postgres: conversation archive
	var conversationSvc services.ConversationService
	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Warn("postgres unavailable, conversation archive disabled")
	} else {
		conversationSvc = services.NewConversationService(pgrepo.NewConversationRepo(config.PostgresDB))
		log.Info("postgres connected")
	}

	limiter := services.NewRateLimiter(rateLimitRepo(cfg, rdb, log), services.RateLimitOptions{
		Cooldown:   cfg.Cooldown,
		DailyLimit: cfg.DailyLimit,
		Location:   loc,
	}, log)

	// language models
	primary, err := llm.NewProvider(ctx, cfg.PrimaryLLM)
	if err != nil {
		log.WithError(err).Fatal("primary llm")
	}
	defer primary.Close()

	var secondary llm.Provider
	if sp, err := llm.NewProvider(ctx, cfg.SecondaryLLM); err != nil {
		log.WithError(err).Warn("secondary llm unavailable")
	} else {
		secondary = sp
		defer sp.Close()
	}

	// tools
	catalog := tools.DefaultCatalog(cfg.DisabledTools...)
	var exec tools.Executor
	if mcpExec, err := tools.NewMCPExecutor(ctx, cfg.ToolServerURL, cfg.ToolServerToken); err != nil {
		log.WithError(err).Warn("tool server unavailable, tool calls will fail")
		exec = tools.ExecutorFunc(func(ctx context.Context, scope, name string, args map[string]any) (tools.Result, error) {
			return tools.Result{}, utils.E(utils.CodeToolExecution, "tools.Execute", "tool server unavailable", err)
		})
	} else {
		defer mcpExec.Close()
		exec = tools.NewCachedExecutor(mcpExec, catalog, cache.NewRedisCache(rdb, "basketvoice"), cfg.ReadCacheTTL, log)
	}

	dispatcher := services.NewDispatcher(primary, secondary, catalog, exec, services.DispatcherOptions{
		MaxRounds:    cfg.MaxToolRounds,
		RoundTimeout: cfg.PrimaryTimeout,
	}, log)

	// speech
	speech, err := stt.NewGoogleSpeech(ctx)
	var speechFactory assistant.SpeechFactory
	if err != nil {
		log.WithError(err).Warn("speech recognition unavailable")
	} else {
		defer speech.Close()
		speechFactory = func(pipe *stt.AudioPipe, mic bool) stt.Engine { return speech.Engine(pipe, mic) }
	}

	synthesis := synthesisProviders(ctx, cfg, log)

	var archive assistant.ExchangePublisher
	if conversationSvc != nil {
		archive = &workers.RedisArchivePublisher{Redis: rdb, MaxLen: 100000}
		pool := &workers.ArchiveWorkerPool{Redis: rdb, Conversations: conversationSvc, Logger: log}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("archive workers")
		}
	}

	manager := assistant.NewManager(&assistant.Engine{
		Config:     cfg,
		Speech:     speechFactory,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Synthesis:  synthesis,
		Notifier:   assistant.NewRedisNotifier(rdb, log),
		Recorder: &assistant.ServiceRecorder{
			Utterances: utteranceSvc,
			Sessions:   sessionSvc,
			Archive:    archive,
			Log:        log,
		},
		Audit:      sessionSvc,
		Log:        log,
		SampleRate: 16000,
	})
	defer manager.CloseAll(context.Background())

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log, "/ping"))

	deps := routes.Deps{
		Assistant: handlers.NewAssistantHandler(manager, sessionSvc, utteranceSvc),
		RateLimit: handlers.NewRateLimitHandler(limiter),
		WS:        handlers.NewWSHandler(manager, rdb, log, splitOrigins(os.Getenv("WS_ALLOWED_ORIGINS"))),
	}
	if conversationSvc != nil {
		deps.Conversation = handlers.NewConversationHandler(conversationSvc)
	}
	routes.RegisterRoutes(r, deps)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()
	log.WithField("port", port).Info("listening")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func rateLimitRepo(cfg config.AssistantConfig, rdb *redis.Client, log *logrus.Logger) repositories.RateLimitRepository {
	if cfg.RateLimitBackend == "sqlite" {
		if err := config.InitSQLite(); err != nil {
			log.WithError(err).Fatal("sqlite init")
		}
		repo, err := sqliterepo.NewRateLimitRepo(config.SQLiteDB)
		if err != nil {
			log.WithError(err).Fatal("sqlite rate limit repo")
		}
		return repo
	}
	return redisrepo.NewRateLimitRepo(rdb)
}

// synthesisProviders builds the remote cascade in the configured order,
// each optionally backed by the GCS audio cache.
func synthesisProviders(ctx context.Context, cfg config.AssistantConfig, log *logrus.Logger) []tts.Provider {
	var store storage.ObjectStore
	if cfg.AudioCacheBucket != "" {
		gcs, err := storage.NewGCSStore(ctx, cfg.AudioCacheBucket)
		if err != nil {
			log.WithError(err).Warn("audio cache disabled")
		} else {
			store = gcs
		}
	}

	var out []tts.Provider
	for _, name := range cfg.SynthesisOrder {
		var p tts.Provider
		switch strings.ToLower(name) {
		case "elevenlabs":
			if cfg.ElevenLabsAPIKey == "" || cfg.ElevenLabsVoice == "" {
				log.Warn("elevenlabs not configured, skipping")
				continue
			}
			p = tts.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoice, cfg.ElevenLabsModel)
		case "google":
			g, err := tts.NewGoogleTTS(ctx, cfg.GoogleTTSVoice)
			if err != nil {
				log.WithError(err).Warn("google tts unavailable, skipping")
				continue
			}
			p = g
		default:
			log.WithField("provider", name).Warn("unknown synthesis provider")
			continue
		}
		if store != nil {
			p = tts.NewCachedProvider(p, store, log)
		}
		out = append(out, p)
	}
	return out
}

func splitOrigins(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
