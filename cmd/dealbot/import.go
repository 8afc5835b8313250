package main

import (
	"fmt"
	"os"
	"path/filepath"

	"ksp-deals/internal/revenue"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <report.xlsx>",
	Short: "Import a KSP affiliate commission report",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	sum, err := revenue.NewImporter(db, links()).Import(cmd.Context(), filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rows=%d matched=%d unmatched=%d revenue=₪%s\n",
		sum.Import.TotalRows, sum.Import.MatchedRows, sum.UnmatchedRows, sum.Import.TotalRevenue.StringFixed(2))
	return nil
}
