package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kayz/quorum/internal/search"
	"github.com/spf13/cobra"
)

var (
	searchIterations int
	searchSequential bool
	searchPerSource  int
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run only the search stage",
	Long: `Query every enabled search engine with diversified queries, merge the
results and print them grouped by source. No provider is called.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchIterations, "iterations", 0, "Search iterations (default from config)")
	searchCmd.Flags().BoolVar(&searchSequential, "sequential", false, "Call engines one at a time")
	searchCmd.Flags().IntVar(&searchPerSource, "limit", 0, "Results to print per source (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print the merged results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	searchers := buildSearchers(cfg.Search)
	if len(searchers) == 0 {
		return fmt.Errorf("no search engines enabled in config")
	}

	settings := pipelineSettings(cfg, runOverrides{iterations: searchIterations, sequential: searchSequential})
	settings.Search.Parallel = settings.Parallel
	collector := search.NewCollector(searchers, settings.Search)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.RunTimeout)
		defer cancel()
	}

	out := collector.Collect(ctx, query)

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Results())
	}

	perSource := searchPerSource
	if perSource <= 0 {
		perSource = cfg.Search.ContextPerSource
	}
	if text := search.FormatContext(out.Corpus, perSource); text != "" {
		fmt.Println(text)
	}
	fmt.Println(search.FormatSummary(out))
	if out.AllFailed {
		return fmt.Errorf("every search call failed")
	}
	return nil
}
