package cmd

import (
	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/mcpserver"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve ask_panel and search_web as MCP tools on stdio",
	Long: `Run an MCP server on stdin/stdout. Register it in an MCP client as:

  {"command": "quorum", "args": ["mcp"]}

Logs go to stderr (or logging.file) so they never corrupt the protocol stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, runOverrides{})
		if err != nil {
			return err
		}
		defer a.Close()

		var searcher mcpserver.Searcher
		if len(a.searchers) > 0 {
			searcher = a.pipeline
		} else {
			logger.Warn("[MCP] no search engines enabled, search_web will report an error")
		}
		return mcpserver.New(a.pipeline, searcher, Version, func(res *pipeline.Result) { a.record(res) }).ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
