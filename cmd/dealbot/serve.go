package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ksp-deals/internal/api"
	"ksp-deals/internal/bot"
	"ksp-deals/internal/channel"
	"ksp-deals/internal/revenue"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor, the admin bot and the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().Bool("no-monitor", false, "Do not run scrape passes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}
	addr := cfg.HTTPAddr
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		addr = v
	}
	noMonitor, _ := cmd.Flags().GetBool("no-monitor")

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	tg, err := channel.Init(cfg.TelegramBotToken)
	if err != nil {
		return err
	}

	sched := newScheduler(db, channel.NewTelegram(tg))
	alertSvc := newAlerts(db)
	admin := bot.New(tg, alertSvc, sched, cfg.TelegramAdminChatID)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(db, alertSvc, sched, revenue.NewImporter(db, links()), links(), cfg.Location).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if !noMonitor {
		mon := newMonitor(db)
		if cfg.AutoPost {
			mon = mon.WithAutoPost(sched)
		}
		g.Go(func() error { return mon.Start(ctx) })
	}

	g.Go(func() error {
		defer tg.StopReceivingUpdates()
		return admin.Run(ctx, bot.Updates(tg))
	})

	g.Go(func() error {
		slog.Info("http api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("shutting down")
	return err
}
