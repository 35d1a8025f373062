package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/sink"
	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/sink/mssql"
	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/sink/postgres"
	"github.com/ekaya-inc/ekaya-intake/pkg/config"
	"github.com/ekaya-inc/ekaya-intake/pkg/database"
	"github.com/ekaya-inc/ekaya-intake/pkg/extraction"
	"github.com/ekaya-inc/ekaya-intake/pkg/extraction/document"
	"github.com/ekaya-inc/ekaya-intake/pkg/extraction/freetext"
	"github.com/ekaya-inc/ekaya-intake/pkg/extraction/tabular"
	"github.com/ekaya-inc/ekaya-intake/pkg/handlers"
	"github.com/ekaya-inc/ekaya-intake/pkg/llm"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	mcpserver "github.com/ekaya-inc/ekaya-intake/pkg/mcp"
	"github.com/ekaya-inc/ekaya-intake/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-intake/pkg/middleware"
	"github.com/ekaya-inc/ekaya-intake/pkg/repositories"
	"github.com/ekaya-inc/ekaya-intake/pkg/router"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ekaya-intake",
	Short: "AI-assisted inventory import reconciliation",
	Long: `ekaya-intake turns supplier spreadsheets, documents, photos and free text
into inventory records. Each upload becomes a reconciliation session that asks
clarifying questions until the mapping is confident, then commits on approval.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and MCP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	dsn := cfg.Database.ConnectionString()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dsn,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Error("Failed to connect to database",
			zap.String("database", logging.SanitizeConnectionString(dsn)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}
	if err := database.MigratePool(db, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Error("Failed to apply migrations",
			zap.String("database", logging.SanitizeConnectionString(dsn)),
			zap.String("migrations_path", cfg.Database.MigrationsPath),
			zap.String("error", logging.SanitizeError(err)))
		db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(configPath, Version)
	if err != nil {
		return err
	}
	db, err := connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	db.Close()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFile(configPath, Version)
	if err != nil {
		return err
	}
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("reasoning_provider", cfg.Reasoning.Provider),
		zap.String("reasoning_model", cfg.Reasoning.Model),
		zap.Bool("vision", cfg.Vision.Enabled()),
		zap.String("sink", cfg.Sink.Type),
		zap.String("learning_store", cfg.Learning.Store))

	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	patterns, closePatterns, err := learnedPatternStore(cfg, db)
	if err != nil {
		return err
	}
	defer closePatterns()

	schemas, err := schemaProvider(ctx, cfg)
	if err != nil {
		return err
	}

	extractors, reasoner, err := reasoningStack(ctx, cfg)
	if err != nil {
		return err
	}

	commitSink, err := inventorySink(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer commitSink.Close()

	learning := services.NewLearningDispatcher(patterns, logger,
		services.WithLearningWorkers(cfg.Session.LearningWorkers))
	defer learning.Close()

	sessionRepo := repositories.NewImportSessionRepository(db)
	intake := services.NewIntakeService(services.IntakeDeps{
		Sessions:   sessionRepo,
		Contexts:   repositories.NewSessionContextRepository(db),
		Patterns:   patterns,
		Schemas:    schemas,
		Extractors: extractors,
		Reasoner:   reasoner,
		Sink:       commitSink,
		Learning:   learning,
	}, services.IntakeConfig{
		MaxRounds:         cfg.Session.MaxRounds,
		MaxCommitAttempts: cfg.Session.MaxCommitAttempts,
		ReasoningTimeout:  cfg.Reasoning.Timeout,
	}, logger)

	retention := services.NewRetentionService(sessionRepo, logger)
	go retention.RunScheduler(ctx, 6*time.Hour, cfg.Session.RetentionDays)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewImportsHandler(intake, 0, logger).RegisterRoutes(mux)

	mcpSrv := mcpserver.NewServer("ekaya-intake", cfg.Version, logger)
	tools.RegisterHealthTool(mcpSrv.MCP(), cfg.Version, schemas)
	tools.RegisterImportTools(mcpSrv.MCP(), &tools.ImportToolDeps{Intake: intake, Logger: logger.Named("mcp-tools")})
	mux.Handle("/mcp", mcpSrv.NewStreamableHTTPServer())

	handler := middleware.Recoverer(logger)(middleware.RequestLogger(logger)(mux))
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-intake",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func learnedPatternStore(cfg *config.Config, db *database.DB) (repositories.LearnedPatternRepository, func(), error) {
	if cfg.Learning.Store == config.LearningStoreSQLite {
		repo, err := repositories.NewSQLiteLearnedPatternRepository(cfg.Learning.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open learned pattern store: %w", err)
		}
		return repo, func() { _ = repo.Close() }, nil
	}
	return repositories.NewLearnedPatternRepository(db), func() {}, nil
}

func schemaProvider(ctx context.Context, cfg *config.Config) (services.SchemaProvider, error) {
	if cfg.Schema.File == "" {
		return services.NewStaticSchemaProvider(services.DefaultSchema()), nil
	}
	p, err := services.NewFileSchemaProvider(cfg.Schema.File, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Schema.Watch {
		go func() {
			if err := p.Watch(ctx); err != nil {
				logger.Error("Schema watcher stopped", zap.Error(err))
			}
		}()
	}
	return p, nil
}

func reasoningStack(ctx context.Context, cfg *config.Config) (*extraction.Registry, services.Reasoner, error) {
	client, err := llm.NewReasoningClient(&llm.Config{
		Provider: cfg.Reasoning.Provider,
		Endpoint: cfg.Reasoning.Endpoint,
		Model:    cfg.Reasoning.Model,
		APIKey:   cfg.Reasoning.APIKey,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("reasoning client: %w", err)
	}

	var vision llm.VisionClient
	if cfg.Vision.Enabled() {
		vision, err = llm.NewVisionClient(ctx, &llm.Config{
			Provider: cfg.Vision.Provider,
			Endpoint: cfg.Vision.Endpoint,
			Model:    cfg.Vision.Model,
			APIKey:   cfg.Vision.APIKey,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("vision client: %w", err)
		}
	}

	structurer := extraction.NewTextStructurer(client, logger)
	tab := tabular.NewExtractor()
	doc := document.NewExtractor(vision, structurer, logger)

	registry := extraction.NewRegistry()
	registry.Register(router.AdapterCSV, tab)
	registry.Register(router.AdapterXLSX, tab)
	registry.Register(router.AdapterPDF, doc)
	registry.Register(router.AdapterDOCX, doc)
	registry.Register(router.AdapterVision, doc)
	registry.Register(router.AdapterFreeText, freetext.NewExtractor(structurer))

	reasoner := services.NewLLMReasoner(client, services.ReasonerConfig{
		MaxConcurrent:     cfg.Reasoning.MaxConcurrent,
		RequestsPerMinute: cfg.Reasoning.RequestsPerMinute,
		Breaker:           llm.DefaultCircuitBreakerConfig(),
	}, logger)
	return registry, reasoner, nil
}

func inventorySink(ctx context.Context, cfg *config.Config, db *database.DB) (sink.CommitSink, error) {
	if cfg.Sink.Type == config.SinkMSSQL {
		m := cfg.Sink.MSSQL
		return mssql.NewSink(ctx, &mssql.Config{
			Host:                   m.ResolvedHost(),
			Port:                   m.Port,
			Database:               m.Database,
			AuthMethod:             m.AuthMethod,
			Username:               m.Username,
			Password:               m.Password,
			TenantID:               m.TenantID,
			ClientID:               m.ClientID,
			ClientSecret:           m.ClientSecret,
			Encrypt:                m.Encrypt,
			TrustServerCertificate: m.TrustServerCertificate,
		}, logger)
	}
	return postgres.NewSink(db, logger), nil
}
