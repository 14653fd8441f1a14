package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"deepresearch/internal/db"
	"deepresearch/internal/extract"
	"deepresearch/internal/history"

	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historySession string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived research answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DB.Path == "" {
			return errors.New("history archive is disabled (db.path is empty)")
		}

		database, err := db.Open(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}

		store := history.NewStore(database)
		var records []history.Record
		if historySession != "" {
			records, err = store.Session(cmd.Context(), historySession)
		} else {
			records, err = store.Recent(cmd.Context(), historyLimit)
		}
		if err != nil {
			return err
		}

		printRecords(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "show every entry of one session")
}

func printRecords(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No archived answers.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "[%s] %s\nQ: %s\n%s\n\n",
			r.AskedAt.Local().Format(time.DateTime),
			r.SessionID,
			r.Question,
			extract.Render(extract.Delimited, r.Result()),
		)
	}
}
