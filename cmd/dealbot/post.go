package main

import (
	"fmt"

	"ksp-deals/internal/channel"

	"github.com/spf13/cobra"
)

var postCmd = &cobra.Command{
	Use:   "post [alert-id]",
	Short: "Post one alert, or every eligible pending deal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPost,
}

func init() {
	rootCmd.AddCommand(postCmd)
}

func runPost(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}
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

	if len(args) == 1 {
		res, err := sched.PostOne(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "posted alert %s (message %s)\n", res.AlertID, res.Receipt)
		return nil
	}

	res, err := sched.PostEligiblePending(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "posted=%d skipped=%d\n", res.Posted, res.Skipped)
	return nil
}
