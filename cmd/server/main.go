// Command server runs the Deliberation State Machine + Mediation Engine
// HTTP API: agent registration, deliberation lifecycle, and the background
// transition-recheck queue that drives stage advancement.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/auth"
	"github.com/deliberation/dsm-engine/internal/background"
	"github.com/deliberation/dsm-engine/internal/config"
	"github.com/deliberation/dsm-engine/internal/database"
	"github.com/deliberation/dsm-engine/internal/deliberation"
	"github.com/deliberation/dsm-engine/internal/handlers"
	"github.com/deliberation/dsm-engine/internal/llm"
	"github.com/deliberation/dsm-engine/internal/mediation"
	"github.com/deliberation/dsm-engine/internal/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Debug("could not load .env file")
		}
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load()
	if cfg.Engine.VerboseLogging {
		logger.SetLevel(logrus.DebugLevel)
	}
	if cfg.Server.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	db, err := database.NewPostgresDB(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}

	pool := db.Pool()
	repos := deliberation.Repositories{
		Deliberations: database.NewDeliberationRepository(pool, logger),
		Opinions:      database.NewOpinionRepository(pool, logger),
		Statements:    database.NewStatementRepository(pool, logger),
		Rankings:      database.NewRankingRepository(pool, logger),
		Critiques:     database.NewCritiqueRepository(pool, logger),
		Feedback:      database.NewFeedbackRepository(pool, logger),
	}
	participants := database.NewParticipantRepository(pool, logger)

	llmClient := llm.NewClient(llm.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLM.DefaultTimeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}, logger)
	defer llmClient.Close()

	predictor := mediation.NewChainOfThoughtPredictor(llmClient, cfg.Engine.RetryBudget, 512)
	generator := mediation.NewTextModelStatementGenerator(llmClient, cfg.Engine.RetryBudget, 512)
	aggregator := mediation.NewSchulzeAggregator()
	engine := mediation.NewEngine(generator, predictor, aggregator, mediation.TBRC)

	hasher := auth.NewHasher(cfg.Auth.Salt)

	svc := deliberation.NewService(pool, repos, engine, cfg.Engine, logger)

	queueMetrics := background.NewQueueMetrics()
	queue := background.NewTransitionJobQueue(4, svc.CheckTransition, logger, queueMetrics)
	svc.SetQueue(queue)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.RequestLogging {
		router.Use(middleware.RequestLogger(logger))
	}

	participantHandler := handlers.NewParticipantHandler(participants, hasher, logger)
	deliberationHandler := handlers.NewDeliberationHandler(svc, logger)
	healthHandler := handlers.NewHealthHandler(db, queue)

	router.GET("/health", healthHandler.Check)
	router.POST("/agents/register", participantHandler.Register)

	authed := router.Group("/")
	authed.Use(middleware.Auth(hasher, participants, logger))
	{
		authed.POST("/deliberations", deliberationHandler.Create)
		authed.GET("/deliberations", deliberationHandler.List)
		authed.GET("/deliberations/:id", deliberationHandler.Get)
		authed.GET("/deliberations/:id/statements", deliberationHandler.GetStatements)
		authed.POST("/deliberations/:id/opinions", deliberationHandler.SubmitOpinion)
		authed.POST("/deliberations/:id/rankings", deliberationHandler.SubmitRanking)
		authed.POST("/deliberations/:id/critiques", deliberationHandler.SubmitCritique)
		authed.POST("/deliberations/:id/feedback", deliberationHandler.SubmitFeedback)
		authed.GET("/deliberations/:id/result", deliberationHandler.GetResult)
		authed.POST("/deliberations/:id/recheck", deliberationHandler.Recheck)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("starting deliberation server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.WithError(err).Fatal("server failed")
	case <-quit:
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	if err := queue.Shutdown(10 * time.Second); err != nil {
		logger.WithError(err).Error("transition queue failed to drain")
	}

	logger.Info("shutdown complete")
}
