package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/codex-k8s/grades-mcp-server/configs"
	"github.com/codex-k8s/grades-mcp-server/internal/api"
	"github.com/codex-k8s/grades-mcp-server/internal/app"
	"github.com/codex-k8s/grades-mcp-server/internal/audit"
	"github.com/codex-k8s/grades-mcp-server/internal/config"
	"github.com/codex-k8s/grades-mcp-server/internal/constants"
	"github.com/codex-k8s/grades-mcp-server/internal/dsl"
	"github.com/codex-k8s/grades-mcp-server/internal/http/health"
	"github.com/codex-k8s/grades-mcp-server/internal/identity"
	"github.com/codex-k8s/grades-mcp-server/internal/limits"
	"github.com/codex-k8s/grades-mcp-server/internal/log"
	"github.com/codex-k8s/grades-mcp-server/internal/mcpserver"
	"github.com/codex-k8s/grades-mcp-server/internal/pipeline"
	"github.com/codex-k8s/grades-mcp-server/internal/render"
	"github.com/codex-k8s/grades-mcp-server/internal/startup"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
	"github.com/codex-k8s/grades-mcp-server/internal/store/gormstore"
	"github.com/codex-k8s/grades-mcp-server/internal/store/memstore"
	"github.com/codex-k8s/grades-mcp-server/internal/templates"
	"github.com/codex-k8s/grades-mcp-server/internal/timeutil"
	"github.com/codex-k8s/grades-mcp-server/internal/translator"
	"github.com/codex-k8s/grades-mcp-server/internal/validate"
)

// backend is a store that can also be seeded and checked for readiness.
type backend interface {
	store.Store
	store.Seeder
}

func main() {
	embeddedConfig := flag.String("embedded-config", "", "Use embedded config from configs/ (filename)")
	listEmbedded := flag.Bool("list-embedded", false, "Print embedded config names and exit")
	flag.Parse()

	if *listEmbedded {
		for _, name := range configs.Names() {
			fmt.Println(name)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.LogLevel)

	var rendered []byte
	if *embeddedConfig != "" || cfg.ConfigPath == "" {
		name := *embeddedConfig
		if name == "" {
			name = configs.Default
		}
		var raw []byte
		raw, err = configs.Load(name)
		if err != nil {
			logger.Error("load embedded config failed", "error", err)
			os.Exit(1)
		}
		rendered, err = render.RenderBytes(name, raw)
	} else {
		rendered, err = render.RenderFile(cfg.ConfigPath)
	}
	if err != nil {
		logger.Error("render config failed", "error", err)
		os.Exit(1)
	}

	dslCfg, err := dsl.Load(rendered)
	if err != nil {
		logger.Error("parse config failed", "error", err)
		os.Exit(1)
	}

	messages, err := templates.Load(cfg.Lang)
	if err != nil {
		logger.Error("load templates failed", "error", err)
		os.Exit(1)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	go func() {
		sig := <-sigCh
		logger.Warn("shutdown requested", "signal", sig.String())
		cancel()
	}()

	if err := run(baseCtx, cfg, dslCfg, messages, logger); err != nil {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, dslCfg *dsl.Config, messages *templates.Bundle, logger *slog.Logger) error {
	db, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := startup.Run(ctx, dslCfg.Startup, db, logger); err != nil {
		return err
	}

	auditLog, closeAudit := openAudit(cfg, dslCfg.Audit, logger)
	defer closeAudit()

	tr, closeTranslator := openTranslator(ctx, cfg, dslCfg.Translator, logger)
	defer closeTranslator()

	p, err := pipeline.NewForStore(db, pipeline.Config{
		Validator: validate.New(validate.Bounds{
			MinValue:          *dslCfg.Grading.MinValue,
			MaxValue:          *dslCfg.Grading.MaxValue,
			ModuleMaxLen:      dslCfg.Grading.ModuleMaxLength,
			DescriptionMaxLen: dslCfg.Grading.DescriptionMaxLength,
		}),
		Translator: tr,
		Messages:   messages,
		Audit:      auditLog,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	admission := limits.New(limits.Policy{
		RatePerMinute: dslCfg.Limits.RatePerMinute,
		Burst:         dslCfg.Limits.Burst,
		MaxTextLength: dslCfg.Limits.MaxTextLength,
	}, messages)

	builder := mcpserver.Builder{
		Pipeline: p,
		Limits:   admission,
		Logger:   logger,
		Audit:    auditLog,
	}
	server, err := builder.Build(dslCfg)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	extra := map[string]http.Handler{}
	if dslCfg.Server.HTTP.APIPath != "" {
		rest, err := api.New(api.Options{
			BasePath:  dslCfg.Server.HTTP.APIPath,
			Pipeline:  p,
			Resolver:  identity.NewResolver(db),
			Limits:    admission,
			Messages:  messages,
			JWTSecret: cfg.JWTSecret,
			Audit:     auditLog,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("build api: %w", err)
		}
		extra[dslCfg.Server.HTTP.APIPath+"/"] = rest
	}
	checks := map[string]health.Pinger{"store": db}

	switch dslCfg.Server.Transport {
	case constants.TransportStdio:
		return runStdio(ctx, cfg, dslCfg, server, extra, checks, logger)
	default:
		return runHTTP(ctx, cfg, dslCfg, server, extra, checks, logger)
	}
}

func openStore(cfg config.Config, logger *slog.Logger) (backend, func(), error) {
	switch cfg.StoreDriver {
	case constants.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return memstore.New(), func() {}, nil
	case constants.DriverPostgres:
		db, err := gormstore.Open(cfg.DatabaseURL, gormstore.Options{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				logger.Warn("close store failed", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func openAudit(cfg config.Config, auditCfg dsl.AuditConfig, logger *slog.Logger) (audit.Logger, func()) {
	base := audit.New(logger)
	if cfg.RedisAddr == "" {
		return base, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	stream := audit.NewStream(client, auditCfg.RedisStream, auditCfg.MaxLen, logger)
	stream.Timeout = timeutil.ParseDurationOrDefault(auditCfg.Timeout, stream.Timeout)
	logger.Info("audit stream enabled", "addr", cfg.RedisAddr, "stream", stream.Name)
	return audit.Multi{base, stream}, func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis failed", "error", err)
		}
	}
}

func openTranslator(ctx context.Context, cfg config.Config, trCfg dsl.TranslatorConfig, logger *slog.Logger) (translator.Translator, func()) {
	rules := translator.Rules{}
	if trCfg.Kind != constants.TranslatorGemini {
		return rules, func() {}
	}
	model := trCfg.Model
	if cfg.GeminiModel != "" {
		model = cfg.GeminiModel
	}
	g, err := translator.NewGemini(ctx, cfg.GeminiAPIKey, model, rules, logger)
	if err != nil {
		logger.Warn("gemini translator unavailable, using rules", "error", err)
		return rules, func() {}
	}
	g.Timeout = timeutil.ParseDurationOrDefault(trCfg.Timeout, 0)
	return g, func() {
		if err := g.Close(); err != nil {
			logger.Warn("close gemini client failed", "error", err)
		}
	}
}

func runStdio(ctx context.Context, envCfg config.Config, dslCfg *dsl.Config, server *mcp.Server, extra map[string]http.Handler, checks map[string]health.Pinger, logger *slog.Logger) error {
	if len(extra) == 0 {
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	application, err := app.New(ctx, dslCfg.Server, nil, extra, checks, logger, envCfg.ShutdownTimeout)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()
	stdioErr := server.Run(ctx, &mcp.StdioTransport{})
	cancel()
	return errors.Join(stdioErr, <-errCh)
}

func runHTTP(ctx context.Context, envCfg config.Config, dslCfg *dsl.Config, server *mcp.Server, extra map[string]http.Handler, checks map[string]health.Pinger, logger *slog.Logger) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{
		Stateless: dslCfg.Server.HTTP.Stateless,
	})

	application, err := app.New(ctx, dslCfg.Server, handler, extra, checks, logger, envCfg.ShutdownTimeout)
	if err != nil {
		return err
	}

	return application.Run(ctx)
}
