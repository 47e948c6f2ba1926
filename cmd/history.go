package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kayz/quorum/internal/persist"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/report"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historySearch string
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse archived runs",
	RunE:  runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one run; any unique id prefix works",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(args[0])
		switch {
		case errors.Is(err, persist.ErrNotFound):
			return fmt.Errorf("no run matches %q", args[0])
		case errors.Is(err, persist.ErrAmbiguous):
			return fmt.Errorf("%q matches more than one run, use a longer prefix", args[0])
		case err != nil:
			return err
		}

		if historyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run.Document)
		}
		fmt.Print(report.Markdown(run.Document))
		if run.OutputDir != "" {
			fmt.Printf("\nFiles: %s\n", run.OutputDir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)

	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
		c.Flags().StringVar(&historySearch, "search", "", "Only runs whose question contains this keyword")
	}
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the stored document as JSON")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	var runs []persist.RunSummary
	if historySearch != "" {
		runs, err = store.SearchRuns(historySearch, historyLimit)
	} else {
		runs, err = store.ListRuns(historyLimit)
	}
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %s  %-11s %d/%d ok  %6.1fs  %s\n",
			pipeline.ShortID(r.ID), r.StartedAt.Local().Format("2006-01-02 15:04"), r.Outcome,
			r.Succeeded, r.Providers, r.ElapsedSeconds, oneLine(r.Question, 70))
	}
	return nil
}
