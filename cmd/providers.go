package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kayz/quorum/internal/config"
	"github.com/kayz/quorum/internal/llm"
	"github.com/kayz/quorum/internal/persist"
	"github.com/spf13/cobra"
)

const benchPrompt = "Reply with the single word OK."

var (
	benchTimeout         int
	benchDisableFailures bool
	benchSequential      bool

	toggleName string
)

type benchResult struct {
	Provider string
	Model    string
	Status   string
	Detail   string
	Latency  time.Duration
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Provider tools (list, bench, enable, disable, stats)",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show configured providers and whether they can be called",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		synth, hasSynth := cfg.SynthesizerProvider()
		fmt.Println("Providers:")
		for _, p := range cfg.Providers {
			fmt.Printf("- %s [%s] type=%s model=%s%s\n", p.Name, providerStatus(p), p.Type,
				defaultIfEmpty(p.Model, "default"), synthMark(hasSynth && synth.Name == p.Name))
		}
		fmt.Printf("Backend types: %s\n", strings.Join(llm.NewRegistry().ListTypes(), ", "))
		return nil
	},
}

var providersBenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Send a one-line ping to every usable provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runProvidersBench(cmd.Context(), cfg)
	},
}

var providersDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Take a provider off the panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleProvider(cmd, toggleName, false)
	},
}

var providersEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Put a provider back on the panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleProvider(cmd, toggleName, true)
	},
}

var providersStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-provider call statistics from the run archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.ProviderStats()
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("No archived runs.")
			return nil
		}
		printProviderStats(stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersBenchCmd)
	providersCmd.AddCommand(providersDisableCmd)
	providersCmd.AddCommand(providersEnableCmd)
	providersCmd.AddCommand(providersStatsCmd)

	providersBenchCmd.Flags().IntVar(&benchTimeout, "timeout", 30, "Per-provider bench timeout in seconds")
	providersBenchCmd.Flags().BoolVar(&benchDisableFailures, "disable-failures", false, "Disable failed providers in the config file after the bench")
	providersBenchCmd.Flags().BoolVar(&benchSequential, "sequential", false, "Ping providers one at a time")

	providersDisableCmd.Flags().StringVar(&toggleName, "name", "", "Provider name")
	providersEnableCmd.Flags().StringVar(&toggleName, "name", "", "Provider name")
}

func providerStatus(p config.ProviderConfig) string {
	switch {
	case !p.Enabled:
		return "disabled"
	case !p.Usable():
		return "missing key"
	default:
		return "ready"
	}
}

func synthMark(ok bool) string {
	if ok {
		return " (synthesizer)"
	}
	return ""
}

func defaultIfEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func runProvidersBench(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for i := range cfg.Providers {
		if benchTimeout > 0 {
			cfg.Providers[i].Timeout = config.DurationFrom(time.Duration(benchTimeout) * time.Second)
		}
		cfg.Providers[i].MaxTokens = 16
	}
	cfg.PanelSystemPrompt = ""

	providers, err := buildProviders(cfg, llm.NewRegistry())
	if err != nil {
		return err
	}
	panel, err := llm.NewPanel(providers, !benchSequential)
	if err != nil {
		return fmt.Errorf("no usable providers to bench: %w", err)
	}

	results := benchResults(panel.QueryAll(ctx, benchPrompt, ""))

	okCount := 0
	var failNames []string
	fmt.Println("Provider bench result:")
	for _, r := range results {
		if r.Status == "PASS" {
			okCount++
		} else {
			failNames = append(failNames, r.Provider)
		}
		lat := ""
		if r.Latency > 0 {
			lat = fmt.Sprintf(" (%s)", r.Latency.Truncate(time.Millisecond))
		}
		fmt.Printf("- %s/%s: %s%s - %s\n", r.Provider, r.Model, r.Status, lat, r.Detail)
	}
	fmt.Printf("Summary: pass=%d fail=%d\n", okCount, len(results)-okCount)

	if benchDisableFailures && len(failNames) > 0 {
		fmt.Printf("Disabling failed providers: %s\n", strings.Join(failNames, ", "))
		for _, name := range failNames {
			if err := setProviderEnabled(name, false); err != nil {
				fmt.Printf("- WARN failed to disable %s: %v\n", name, err)
			}
		}
	}
	return nil
}

// benchResults turns ping responses into PASS/FAIL lines, failures first.
func benchResults(rs *llm.Responses) []benchResult {
	results := make([]benchResult, 0, rs.Len())
	for _, r := range rs.All() {
		res := benchResult{Provider: r.ProviderID, Model: r.Model, Latency: r.Elapsed, Status: "PASS"}
		if r.OK() {
			res.Detail = oneLine(r.Content, 60)
		} else {
			res.Status = "FAIL"
			res.Detail = r.Err.Error()
		}
		results = append(results, res)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Status == results[j].Status {
			return results[i].Provider < results[j].Provider
		}
		return results[i].Status < results[j].Status
	})
	return results
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

func toggleProvider(cmd *cobra.Command, name string, enabled bool) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("--name is required")
	}
	if err := setProviderEnabled(name, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Provider %s %s\n", name, state)
	return nil
}

// setProviderEnabled rewrites the config file; the environment overlay is
// not applied so keys from the environment are never persisted.
func setProviderEnabled(name string, enabled bool) error {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return err
	}
	found := false
	for i := range cfg.Providers {
		if cfg.Providers[i].Name == name {
			cfg.Providers[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		return fmt.Errorf("provider %q not found in %s", name, path)
	}
	return cfg.SaveTo(path)
}

func openArchive(cmd *cobra.Command) (*persist.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Output.ArchiveDB == "" {
		return nil, fmt.Errorf("run archive is disabled (output.archive_db is empty)")
	}
	return persist.NewStore(cfg.Output.ArchiveDB)
}

func printProviderStats(stats []persist.ProviderStats) {
	fmt.Println("Provider stats:")
	for _, s := range stats {
		fmt.Printf("- %s: calls=%d failures=%d success=%.0f%% avg=%.2fs model=%s\n",
			s.Provider, s.Calls, s.Failures, s.SuccessRate()*100, s.AvgSeconds, defaultIfEmpty(s.LastModel, "-"))
		if len(s.FailureByKinds) > 0 {
			kinds := make([]string, 0, len(s.FailureByKinds))
			for k, n := range s.FailureByKinds {
				kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
			}
			sort.Strings(kinds)
			fmt.Printf("  failures: %s\n", strings.Join(kinds, " "))
		}
	}
}
