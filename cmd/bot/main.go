package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/bitsobot/internal/domain"
	"github.com/makerbot/bitsobot/internal/exchange"
	"github.com/makerbot/bitsobot/internal/ledger"
	"github.com/makerbot/bitsobot/internal/pricing"
	"github.com/makerbot/bitsobot/internal/services"
	"github.com/makerbot/bitsobot/internal/status"
	"github.com/makerbot/bitsobot/pkg/config"
	"github.com/makerbot/bitsobot/pkg/logger"
	"github.com/makerbot/bitsobot/pkg/secretstore"
	"github.com/makerbot/bitsobot/pkg/shutdown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := logrus.WithField("component", "main")

	if !cfg.DryRun && (cfg.APIKey == "" || cfg.APISecret == "") {
		if err := loadCredentials(cfg); err != nil {
			log.Errorf("load credentials: %v", err)
			os.Exit(1)
		}
	}

	book, err := domain.ParseBook(cfg.Book)
	if err != nil {
		log.Errorf("invalid book: %v", err)
		os.Exit(1)
	}

	store, err := ledger.Open(cfg.DatabasePath)
	if err != nil {
		log.Errorf("open ledger: %v", err)
		os.Exit(1)
	}

	bitso := exchange.NewBitso("", cfg.APIKey, cfg.APISecret)
	var client exchange.Client = bitso
	if cfg.DryRun {
		log.Warn("dry run: orders are simulated, market data is live")
		client = exchange.NewPaper(bitso, domain.Balances{
			book.Major: decimal.NewFromInt(100),
			book.Minor: decimal.NewFromInt(100000),
		})
	}

	trader := services.NewTrader(client, store, services.Config{
		Book:             book,
		TradeAmount:      cfg.TradeAmount,
		FeeFallback:      cfg.FeeFallback,
		MaxActivePerSide: cfg.MaxActiveOrders,
		DriftThreshold:   cfg.DriftThreshold,
		Pricing: pricing.Config{
			Strategy:      pricing.StrategyKind(cfg.Strategy),
			Undercut:      cfg.PriceUndercut,
			FixedMargin:   cfg.FixedMargin,
			TargetProfit:  cfg.TargetProfit,
			MaxSellFactor: cfg.MaxSellFactor,
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	manager := shutdown.NewManager()
	manager.OnShutdown(func(ctx context.Context) {
		trader.Shutdown(ctx)
	})
	manager.OnShutdown(func(ctx context.Context) {
		if err := store.Close(); err != nil {
			log.Errorf("close ledger: %v", err)
		}
	})

	if cfg.StatusAddr != "" {
		statusSrv := status.NewServer(store, client)
		statusSrv.Start(cfg.StatusAddr)
		manager.OnShutdown(func(ctx context.Context) {
			if err := statusSrv.Stop(ctx); err != nil {
				log.Errorf("stop status server: %v", err)
			}
		})
	}

	log.Infof("starting: book=%s strategy=%s interval=%s amount=%s dry_run=%v",
		cfg.Book, cfg.Strategy, cfg.CheckInterval, cfg.TradeAmount, cfg.DryRun)
	trader.LogBalances(ctx)

	driver := services.NewDriver(trader, cfg.CheckInterval)
	driver.Run(ctx)

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	manager.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
}

// loadCredentials fills missing API credentials from the encrypted secret
// store, when one is configured.
func loadCredentials(cfg *config.Config) error {
	if cfg.SecretStorePath == "" {
		return fmt.Errorf("no credentials in environment and no secret store configured")
	}
	key, err := secretstore.ParseKey(os.Getenv("SECRETSTORE_KEY"))
	if err != nil {
		return fmt.Errorf("parse secret store key: %w", err)
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.SecretStorePath,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return fmt.Errorf("open secret store: %w", err)
	}
	defer store.Close()

	if cfg.APIKey == "" {
		v, found, err := store.GetString("bitso/api_key")
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("bitso/api_key not found in secret store")
		}
		cfg.APIKey = v
	}
	if cfg.APISecret == "" {
		v, found, err := store.GetString("bitso/api_secret")
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("bitso/api_secret not found in secret store")
		}
		cfg.APISecret = v
	}
	return nil
}
