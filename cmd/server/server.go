package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simon-0512/superrag/internal/config"
	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/domain/history"
	"github.com/simon-0512/superrag/internal/domain/knowledge"
	"github.com/simon-0512/superrag/internal/infrastructure/crontab"
	"github.com/simon-0512/superrag/internal/infrastructure/database"
	"github.com/simon-0512/superrag/internal/infrastructure/database/repository/conversationrepo"
	"github.com/simon-0512/superrag/internal/infrastructure/database/repository/knowledgerepo"
	"github.com/simon-0512/superrag/internal/infrastructure/database/transaction"
	"github.com/simon-0512/superrag/internal/infrastructure/inference"
	"github.com/simon-0512/superrag/internal/infrastructure/logger"
	"github.com/simon-0512/superrag/internal/infrastructure/observability"
	"github.com/simon-0512/superrag/internal/infrastructure/savequeue"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/handlers/chathandler"
	"github.com/simon-0512/superrag/internal/interfaces/httpserver/handlers/conversationhandler"
	chatroute "github.com/simon-0512/superrag/internal/interfaces/httpserver/routes/v1/chat"
	conversationroute "github.com/simon-0512/superrag/internal/interfaces/httpserver/routes/v1/conversation"
	v1 "github.com/simon-0512/superrag/internal/interfaces/httpserver/routes/v1"
	"github.com/simon-0512/superrag/internal/utils/httpclients"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrapLog := logger.GetLogger()
		bootstrapLog.Fatal().Err(err).Msg("load config")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootstrapLog := logger.GetLogger()
		bootstrapLog.Fatal().Err(err).Msg("configure logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("initialize observability")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown telemetry")
			}
		}()
	}

	// Database
	db, err := database.NewDB(cfg.DatabaseURL, cfg.DBPostgresqlRead1DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	if cfg.AutoMigrate {
		if err := database.Migration(db); err != nil {
			log.Fatal().Err(err).Msg("run migrations")
		}
	}
	txDB := transaction.NewDatabase(db)

	// Repositories and domain services
	conversationRepo := conversationrepo.NewConversationGormRepository(txDB)
	messageRepo := conversationrepo.NewMessageGormRepository(txDB)
	knowledgeRepo := knowledgerepo.NewKnowledgeGormRepository(txDB)

	conversationService := conversation.NewConversationService(conversationRepo, messageRepo, cfg.MaxConversationsPerUser)
	knowledgeService := knowledge.NewService(knowledgeRepo)

	// Inference backend, also the history summarizer
	backend := inference.NewDeepSeekClient(httpclients.NewClient("deepseek"), inference.Config{
		BaseURL:      cfg.DeepSeekBaseURL,
		APIKey:       cfg.DeepSeekAPIKey,
		SummaryModel: cfg.SummaryModel,
		Timeout:      cfg.InferenceTimeout,
	})

	policy := history.Policy{
		SummaryRounds:      cfg.SummaryRounds,
		MaxContextMessages: cfg.MaxContextMessages,
	}
	var contextProvider history.ContextProvider
	if cfg.HistoryStrategy == "managed" {
		contextProvider = history.NewManagedProvider(messageRepo, backend, policy, log)
	} else {
		contextProvider = history.NewWindowProvider(messageRepo, backend, policy, log)
	}

	queue := savequeue.NewService(conversationService, txDB, contextProvider, savequeue.Config{
		Capacity:   cfg.SaveQueueCapacity,
		MaxRetries: cfg.SaveQueueMaxRetries,
		BaseDelay:  cfg.SaveQueueBaseDelay,
	})
	queue.Start(ctx)

	// HTTP layer
	chatHandler := chathandler.NewChatHandler(conversationService, contextProvider, knowledgeService, backend, queue, txDB, cfg)
	conversationHandler := conversationhandler.NewConversationHandler(conversationService)
	v1Route := v1.NewV1Route(
		chatroute.NewChatRoute(chatHandler),
		conversationroute.NewConversationRoute(conversationHandler),
		cfg,
	)
	server := httpserver.NewHTTPServer(v1Route, cfg, log)

	retention := crontab.NewCrontab(conversationService, cfg.RetentionSweepSchedule)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return server.Run(egCtx) })
	eg.Go(func() error { return server.RunMetrics(egCtx) })
	eg.Go(func() error { return retention.Run(egCtx) })

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := queue.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("save queue drain incomplete")
	}
}
