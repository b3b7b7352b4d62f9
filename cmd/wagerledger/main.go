package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonnyspicer/mango"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"wagerledger/internal/api"
	"wagerledger/internal/config"
	"wagerledger/internal/custody"
	"wagerledger/internal/db"
	"wagerledger/internal/ledger"
	"wagerledger/internal/mirror"
	"wagerledger/internal/notify"
	"wagerledger/internal/performance"
	"wagerledger/internal/scheduler"
	"wagerledger/internal/store"
)

func main() {
	// Parse CLI flags.
	reportOnly := flag.Bool("report", false, "Print a ledger report and exit")
	flag.Parse()

	// Load configuration.
	configPath := "config.toml"
	if p := os.Getenv("WAGER_CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging.
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("wagerledger starting")

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Initialize database.
	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database initialized", "path", cfg.General.DBPath)

	tracker := performance.NewTracker(database)
	if *reportOnly {
		report, err := tracker.Generate(context.Background())
		if err != nil {
			slog.Error("ledger report failed", "error", err)
			os.Exit(1)
		}
		performance.LogReport(report)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l, vault, err := openLedger(ctx, cfg, database)
	if err != nil {
		slog.Error("failed to start ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("ledger ready",
		"authority", l.Authority(),
		"markets", l.MarketCount(),
		"fee_rate_bps", l.FeeRate(),
		"held", l.Held().Dec(),
	)

	var m *mirror.Mirror
	if cfg.Mirror.Enabled {
		m = mirror.New(mango.DefaultClientInstance(), l, database)
		slog.Info("manifold mirror enabled", "markets", len(cfg.Mirror.Markets))
	}
	sched := scheduler.New(m, cfg.Mirror.Markets, tracker, cfg.Schedule)

	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(&api.Handler{
		Ledger: l,
		Vault:  vault,
		DB:     database,
		Auth:   api.NewVerifier(cfg.API.SignatureWindow.Duration, time.Now),
	})
	srv := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	g.Go(func() error {
		slog.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("wagerledger error", "error", err)
		os.Exit(1)
	}

	slog.Info("wagerledger stopped")
}

// openLedger restores the ledger from the journal. The vault is its
// transfer port and shares the journal's transactions; the log and optional
// Redis sinks are its notifiers.
func openLedger(ctx context.Context, cfg *config.Config, database *sql.DB) (*ledger.Ledger, *custody.Vault, error) {
	journal := store.NewJournal(database)
	if err := journal.Seed(ctx, cfg.Ledger.FeeRateBPS); err != nil {
		return nil, nil, err
	}

	sinks := notify.Fanout{notify.Log{}}
	if cfg.Events.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable at startup", "addr", cfg.Events.RedisAddr, "error", err)
		}
		sinks = append(sinks, notify.NewRedis(rdb, cfg.Events.RedisChannel))
		slog.Info("redis event feed enabled", "addr", cfg.Events.RedisAddr, "channel", cfg.Events.RedisChannel)
	}

	vault := custody.NewVault(database)
	l, err := ledger.New(ledger.Config{
		Authority:     cfg.AuthorityAddress(),
		FeeRateBPS:    cfg.Ledger.FeeRateBPS,
		MaxFeeRateBPS: cfg.Ledger.MaxFeeRateBPS,
	}, vault, ledger.WithJournal(journal), ledger.WithNotifier(sinks))
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Load(ctx, database)
	if err != nil {
		return nil, nil, err
	}
	if st != nil {
		if err := l.Restore(st); err != nil {
			return nil, nil, fmt.Errorf("restoring ledger: %w", err)
		}
	}
	return l, vault, nil
}
