package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/kayz/quorum/internal/config"
	"github.com/kayz/quorum/internal/logger"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configPath string

	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Ask a panel of language models and synthesize one answer",
	Long: `quorum sends one question to several language models at once,
grounds it on web search results, and merges the answers.

Commands:
  quorum ask <question>      Search, query the panel and synthesize
  quorum search <query>      Run only the search stage
  quorum providers           List or bench the configured providers
  quorum history             Browse archived runs
  quorum serve               Run the HTTP + websocket UI
  quorum mcp                 Serve the panel as MCP tools on stdio
  quorum schedule            Ask configured questions on a cron schedule`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Parse and set log level
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info",
		"Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the config file (default: .quorum.yaml next to the executable)")
}

// loadConfig reads the config file, overlays the environment and validates
// the result. logging.level only applies when --log was not given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cmd != nil && !cmd.Flags().Changed("log") && cfg.Logging.Level != "" {
		level, err := logger.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		logger.SetLevel(level)
	}
	if cfg.Logging.File != "" && logFile == nil {
		closer, err := logger.OpenFile(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		logFile = closer
	}
	return cfg, nil
}

func Execute() {
	err := rootCmd.Execute()
	logger.Sync()
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
