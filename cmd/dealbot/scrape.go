package main

import (
	"fmt"

	"ksp-deals/internal/channel"

	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape pass over the KSP categories",
	RunE:  runScrape,
}

func init() {
	scrapeCmd.Flags().Bool("post", false, "Post eligible pending deals after the pass")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	post, _ := cmd.Flags().GetBool("post")

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	mon := newMonitor(db)
	if post {
		if err := cfg.RequireTelegram(); err != nil {
			return err
		}
		tg, err := channel.Init(cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		mon = mon.WithAutoPost(newScheduler(db, channel.NewTelegram(tg)))
	}

	sum, err := mon.RunPass(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "categories=%d scraped=%d created=%d alerts=%d rejected=%d posted=%d\n",
		sum.Categories, sum.Scraped, sum.Created, sum.Alerts, sum.Rejected, sum.Posted)
	return nil
}
