package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"billflow/internal/accounting"
	"billflow/internal/adapters/web"
	"billflow/internal/ai"
	"billflow/internal/config"
	"billflow/internal/core"
	"billflow/internal/db"
	"billflow/internal/filestore"
	"billflow/internal/logger"
	"billflow/internal/split"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log := logger.GetLogger()
		log.Fatal().Err(err).Msg("configuration")
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log := logger.GetLogger()
		log.Fatal().Err(err).Msg("logger setup")
	}
	log := logger.GetLogger()

	if cfg.MigrationsDir == "" {
		log.Warn().Msg("MIGRATIONS_DIR empty, skipping startup migrations")
	} else if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("database migration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection")
	}
	defer pool.Close()

	files, err := filestore.New(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("filestore")
	}

	var extractor core.Extractor
	if cfg.OpenAIAPIKey != "" {
		extractor = ai.NewExtractor(cfg.OpenAIAPIKey, cfg.OpenAIModel, log)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, bill analysis disabled")
	}
	var syncer core.Syncer
	if cfg.SyncBaseURL != "" {
		syncer = accounting.NewClient(cfg.SyncBaseURL, cfg.SyncAPIKey, cfg.SyncTimeout, log)
	} else {
		log.Warn().Msg("SYNC_BASE_URL not set, voucher sync disabled")
	}

	bills := core.NewBillService(pool, files, split.New(cfg.MaxUploadBytes), extractor, syncer, log)
	ledgers := core.NewLedgerStore(pool)
	tenantCfg := core.NewConfigService(pool)

	handler := web.NewHandler(bills, ledgers, tenantCfg, cfg.AllowedOrigins, cfg.MaxUploadBytes, log)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
