package main

import (
	"fmt"
	"log/slog"
	"os"

	"ksp-deals/config"
	"ksp-deals/internal/affiliate"
	"ksp-deals/internal/alerts"
	"ksp-deals/internal/channel"
	"ksp-deals/internal/database"
	"ksp-deals/internal/detector"
	"ksp-deals/internal/models"
	"ksp-deals/internal/monitor"
	"ksp-deals/internal/scheduler"
	"ksp-deals/internal/scraper"

	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "dealbot",
	Short:         "KSP deals monitor and Telegram poster",
	Long:          "Scrapes KSP listings, raises price alerts and posts the best deals to a Telegram channel.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dbPath != "" {
			cfg.DatabasePath = dbPath
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DATABASE_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func links() affiliate.Links {
	return affiliate.Links{
		AffiliateID:   cfg.AffiliateID,
		RetailerBase:  cfg.KSPBaseURL,
		PublicBaseURL: cfg.PublicBaseURL,
	}
}

func openDB() (*database.DB, error) {
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	return db, nil
}

func newScheduler(db *database.DB, d channel.Deliverer) *scheduler.Scheduler {
	return scheduler.New(db, d, scheduler.Config{
		Defaults: models.PostingQuota{
			ChannelID:          cfg.TelegramChannelID,
			MinDiscountPercent: cfg.MinDiscountPercent,
			MaxPostsPerDay:     cfg.MaxPostsPerDay,
		},
		Links:           links(),
		Location:        cfg.Location,
		Spacing:         cfg.PostSpacing,
		DeliveryTimeout: cfg.DeliveryTimeout,
	})
}

func newAlerts(db *database.DB) *alerts.Service {
	return alerts.NewService(db, cfg.Location)
}

func newMonitor(db *database.DB) *monitor.Monitor {
	registry := scraper.NewRegistry(scraper.NewKSPScraper(cfg.KSPBaseURL))
	return monitor.New(detector.New(db), registry, scraper.DefaultCategories(cfg.KSPBaseURL), cfg.CheckInterval)
}
