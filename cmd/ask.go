package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/report"
	"github.com/kayz/quorum/internal/search"
	"github.com/kayz/quorum/internal/timing"
	"github.com/spf13/cobra"
)

var (
	askOverrides runOverrides
	askJSON      bool
	askVerbose   bool
	askProviders []string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the panel one question",
	Long: `Search the configured engines, send the question and the references to
every provider in parallel, and synthesize one answer.

Examples:
  quorum ask "What changed in Go 1.23 iterators?"
  quorum ask --no-search --sequential "Explain CRDTs"
  quorum ask --providers gpt,claude "Compare Raft and Paxos"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askOverrides.noSearch, "no-search", false, "Skip the search stage")
	askCmd.Flags().BoolVar(&askOverrides.noSynthesis, "no-synthesis", false, "Print the raw answers instead of synthesizing")
	askCmd.Flags().BoolVar(&askOverrides.sequential, "sequential", false, "Call engines and providers one at a time")
	askCmd.Flags().IntVar(&askOverrides.iterations, "iterations", 0, "Search iterations (default from config)")
	askCmd.Flags().StringVar(&askOverrides.outDir, "out", "", "Output directory for run files (default from config)")
	askCmd.Flags().BoolVar(&askOverrides.noArchive, "no-archive", false, "Do not archive the run")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the run document as JSON")
	askCmd.Flags().StringSliceVar(&askProviders, "providers", nil, "Only ask these providers (comma-separated names)")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "Also print every provider's answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, askOverrides)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := a.pipeline.RunWith(ctx, question, pipeline.RunOptions{Providers: askProviders})
	if err != nil {
		return err
	}
	dir := a.record(res)

	doc := report.NewDocument(res)
	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	printRun(res, doc)
	if dir != "" {
		fmt.Printf("\nSaved to %s\n", dir)
	}
	return nil
}

func printRun(res *pipeline.Result, doc report.Document) {
	fmt.Println(strings.TrimSpace(doc.Content))
	fmt.Println()
	fmt.Println(doc.ComparisonTable)

	if doc.SynthesisTruncated {
		fmt.Println("\nWarning: the synthesized answer hit the token limit and may be incomplete.")
	}
	if askVerbose {
		fmt.Println("\n## Provider answers")
		for _, r := range doc.Responses {
			fmt.Printf("\n### %s (%s)\n", r.Provider, r.Model)
			if !r.OK() {
				fmt.Printf("failed (%s): %s\n", r.ErrorKind, r.Error)
				continue
			}
			fmt.Println(strings.TrimSpace(r.Content))
		}
	}
	if res.Search != nil {
		fmt.Println()
		fmt.Println(search.FormatSummary(res.Search))
	}
	fmt.Println()
	fmt.Println(timing.FormatSpans(res.Timings))
}
