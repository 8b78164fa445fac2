// Command shuoba serves the Mandarin tutoring voice pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/wenjiez/shuoba/internal/blob"
	"github.com/wenjiez/shuoba/internal/config"
	"github.com/wenjiez/shuoba/internal/health"
	"github.com/wenjiez/shuoba/internal/history"
	"github.com/wenjiez/shuoba/internal/observe"
	"github.com/wenjiez/shuoba/internal/pipeline"
	"github.com/wenjiez/shuoba/internal/resilience"
	"github.com/wenjiez/shuoba/internal/server"
	"github.com/wenjiez/shuoba/pkg/provider/chat"
	"github.com/wenjiez/shuoba/pkg/provider/chat/anyllm"
	"github.com/wenjiez/shuoba/pkg/provider/chat/geminilive"
	sttgroq "github.com/wenjiez/shuoba/pkg/provider/stt/groq"
	"github.com/wenjiez/shuoba/pkg/provider/tts"
	ttsgemini "github.com/wenjiez/shuoba/pkg/provider/tts/gemini"
	"github.com/wenjiez/shuoba/pkg/provider/tts/gtts"
)

// clipURLBase is the URL prefix synthesized clips are served under.
const clipURLBase = "/static/audio"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level (debug|info|warn|error)")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "shuoba: loading .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "shuoba: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "shuoba: %v\n", err)
		}
		return 1
	}

	if *logLevel != "" {
		lvl := config.LogLevel(*logLevel)
		if !lvl.IsValid() {
			fmt.Fprintf(os.Stderr, "shuoba: invalid -log-level %q\n", *logLevel)
			return 1
		}
		cfg.Server.LogLevel = lvl
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("shuoba starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(ctx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	transcriber, err := sttgroq.New(cfg.Providers.STT.APIKey,
		sttgroq.WithModel(cfg.Providers.STT.Model),
		sttgroq.WithLanguage(cfg.Providers.STT.Language),
	)
	if err != nil {
		slog.Error("failed to create transcription provider", "err", err)
		return 1
	}

	chatter, err := buildChatter(cfg)
	if err != nil {
		slog.Error("failed to create chat provider", "err", err)
		return 1
	}

	voices, err := buildVoiceChain(cfg)
	if err != nil {
		slog.Error("failed to create synthesis chain", "err", err)
		return 1
	}
	slog.Info("synthesis chain ready", "order", voices.Names())

	turns, dbClose, err := buildHistoryStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to create history store", "err", err)
		return 1
	}
	if dbClose != nil {
		defer dbClose()
	}

	if err := observe.RegisterHistorySize(otel.GetMeterProvider(), func(ctx context.Context) (int64, error) {
		all, err := turns.ReadAll(ctx)
		if err != nil {
			return 0, err
		}
		return int64(len(all)), nil
	}); err != nil {
		slog.Warn("failed to register history size gauge", "err", err)
	}

	clips, err := blob.NewFSStore(cfg.Server.StaticDir, clipURLBase)
	if err != nil {
		slog.Error("failed to create clip store", "err", err)
		return 1
	}

	pipe, err := pipeline.New(transcriber, chatter, voices, clips, turns,
		pipeline.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create pipeline", "err", err)
		return 1
	}

	probes := health.New()
	probes.AddCheck("history", func(ctx context.Context) error {
		_, err := turns.ReadAll(ctx)
		return err
	})
	probes.AddCheck("clips", func(context.Context) error {
		_, err := os.Stat(clips.Dir())
		return err
	})

	srv, err := server.New(pipe, turns, cfg.Server.StaticDir,
		server.WithLogger(logger),
		server.WithHealth(probes),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serve error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildChatter instantiates the dialogue/translation backend named in cfg.
func buildChatter(cfg *config.Config) (chat.Provider, error) {
	name := cfg.Providers.Chat.Name
	switch name {
	case config.ChatGroq:
		var opts []anyllm.Option
		if cfg.Providers.Chat.Model != "" {
			opts = append(opts, anyllm.WithModel(cfg.Providers.Chat.Model))
		}
		return anyllm.New(cfg.Providers.Chat.APIKey, opts...)
	case config.ChatGeminiLive:
		var opts []geminilive.Option
		if cfg.Providers.Chat.Model != "" {
			opts = append(opts, geminilive.WithModel(cfg.Providers.Chat.Model))
		}
		return geminilive.New(cfg.Providers.Chat.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown chat backend %q", name)
	}
}

// buildVoiceChain assembles the synthesis failover chain in the configured
// priority order.
func buildVoiceChain(cfg *config.Config) (*resilience.Chain[tts.Provider], error) {
	chain := resilience.NewChain[tts.Provider](resilience.BreakerConfig{})
	for _, name := range cfg.Providers.TTS.Order {
		switch name {
		case "gemini":
			if cfg.Providers.TTS.Gemini.APIKey == "" {
				slog.Warn("skipping gemini synthesis provider, no api key configured")
				continue
			}
			p, err := ttsgemini.New(cfg.Providers.TTS.Gemini.APIKey,
				ttsgemini.WithModel(cfg.Providers.TTS.Gemini.Model),
				ttsgemini.WithVoice(cfg.Providers.TTS.Gemini.Voice),
			)
			if err != nil {
				return nil, fmt.Errorf("create gemini synthesis provider: %w", err)
			}
			chain.Add(p.Name(), p)
		case "gtts":
			p := gtts.New(gtts.WithLanguage(cfg.Providers.TTS.GTTS.Language))
			chain.Add(p.Name(), p)
		default:
			return nil, fmt.Errorf("unknown synthesis provider %q", name)
		}
	}
	if chain.Len() == 0 {
		return nil, errors.New("no synthesis providers configured")
	}
	return chain, nil
}

// buildHistoryStore creates the conversation log backend selected in cfg.
// The returned close function is non-nil only for the postgres backend.
func buildHistoryStore(ctx context.Context, cfg *config.Config) (history.Store, func(), error) {
	switch cfg.History.Backend {
	case config.HistoryFile:
		store, err := history.NewFileStore(cfg.History.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("create file history store: %w", err)
		}
		return store, nil, nil
	case config.HistoryPostgres:
		pool, err := pgxpool.New(ctx, cfg.History.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		store := history.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Shuoba — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", "groq / "+cfg.Providers.STT.Model)
	printRow("Chat", string(cfg.Providers.Chat.Name))
	printRow("TTS", strings.Join(cfg.Providers.TTS.Order, " → "))
	printRow("History", string(cfg.History.Backend))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	fmt.Printf("║  %-14s : %-19s ║\n", kind, summaryValue(value))
}

// summaryValue fits a config value into the summary box column, truncating
// on rune boundaries so multibyte values are never split mid-character.
func summaryValue(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if runes := []rune(value); len(runes) > 19 {
		return string(runes[:16]) + "…"
	}
	return value
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
