package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesbot/internal/api"
	"salesbot/internal/config"
	"salesbot/internal/core"
	"salesbot/internal/nodes"
	"salesbot/internal/services"
	"salesbot/internal/storage"
	"salesbot/src"
	"salesbot/src/conversation"
	"salesbot/src/llm"
	"salesbot/src/logger"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const janitorInterval = time.Minute

func main() {
	// the logger is not configured yet, so startup failures go through log
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file loaded: %v", err)
	}

	cfg, err := src.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.InitLogger(cfg.LogConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	tuning, err := config.LoadConfig(cfg.AgentConfig.ConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.AgentConfig.ConfigPath).Msg("❌ Failed to load agent tuning")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.DatabaseConfig.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DatabaseConfig.Path).Msg("❌ Failed to open database")
	}
	defer db.Close()

	crm := storage.NewSQLiteCRMStore(db)
	if cfg.DatabaseConfig.SeedPath != "" {
		n, err := storage.LoadSeedFile(ctx, crm, cfg.DatabaseConfig.SeedPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.DatabaseConfig.SeedPath).Msg("❌ Failed to seed CRM data")
		}
		logger.Info().Int("records", n).Msg("🌱 CRM data seeded")
	}

	var (
		sessions storage.SessionStore
		sqlite   *storage.SQLiteSessionStore
		redis    *storage.RedisSessionStore
	)
	switch cfg.SessionConfig.Backend {
	case "redis":
		rs, err := storage.NewRedisSessionStore(ctx, cfg.RedisConfig.URL, cfg.SessionConfig.TTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
		}
		defer rs.Close()
		sessions = rs
		redis = rs
	default:
		sqlite = storage.NewSQLiteSessionStore(db)
		sessions = sqlite
	}
	logger.Info().Str("backend", cfg.SessionConfig.Backend).Dur("ttl", cfg.SessionConfig.TTL).Msg("🗂️ Session store ready")

	gen, err := llm.NewChatModel(ctx, cfg.LLMConfig)
	if err != nil {
		logger.Warn().Err(err).Str("provider", cfg.LLMConfig.Provider).Msg("⚠️ Chat model unavailable, replies fall back to templates")
		gen = nil
	}

	agent := tuning.Agent
	bounded := storage.NewBoundedStore(crm, agent.StoreTimeout)
	leads := services.NewLeadResolver(bounded)
	mailer := services.NewSMTPMailer(cfg.SMTPConfig)
	if cfg.SMTPConfig.Host == "" {
		logger.Warn().Msg("⚠️ SMTP_HOST is not set, send requests will fail")
	}

	tracker := storage.NewContextTracker(db)
	audit := storage.NewAuditLog(db)
	memory := conversation.NewService(conversation.NewSQLiteRepository(db), conversation.NewWindowStrategy(agent.HistoryLimit))
	executor := nodes.NewExecutor(bounded, audit, tracker)
	formatter := nodes.NewFormatter(gen, executor, memory)

	branches := core.Branches{
		Greeting:    nodes.NewGreetingNode(),
		SendEmail:   nodes.NewSendEmailNode(tracker, services.NewEmailSendService(leads, mailer, bounded, mailer.From())),
		Followup:    nodes.NewFollowupNode(tracker, services.NewFollowupService(bounded, agent.Followup), agent.StoreTimeout),
		EmailDraft:  nodes.NewEmailDraftNode(tracker, services.NewEmailDraftService(leads, gen, agent.EmailDraft)),
		LeadSummary: nodes.NewLeadSummaryNode(tracker, services.NewLeadSummaryService(leads, gen), agent.StoreTimeout),
		CRM:         nodes.NewCRMNode(tracker, services.NewCRMQueryService(bounded, agent.CRM), formatter, agent.StoreTimeout),
	}
	router := core.NewRouter(sessions, memory, audit, nodes.Classify, branches, cfg.ServerConfig.RequestTimeout)

	handler := api.NewHandler(router, db, cfg.ServerConfig.RequestTimeout, cfg.ServerConfig.AllowedOrigins)
	if redis != nil {
		handler.WithHealthCheck(redis)
	}
	srv := &http.Server{
		Addr:              cfg.ServerConfig.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ServerConfig.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("🚀 Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("🛑 Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if sqlite != nil {
		g.Go(func() error {
			return expireSessions(gctx, sqlite, cfg.SessionConfig.TTL)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("❌ Server stopped with error")
	}
	logger.Info().Msg("👋 Server stopped")
}

// expireSessions ends idle SQLite sessions until ctx is cancelled
func expireSessions(ctx context.Context, store *storage.SQLiteSessionStore, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := store.ExpireIdle(ctx, ttl)
			if err != nil {
				logger.Warn().Err(err).Msg("⚠️ Session expiry sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("expired", n).Msg("⏰ Expired idle sessions")
			}
		}
	}
}
