package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pocketomega/reasonloop/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the reason tool over MCP stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout. Logs go to stderr, so
stdout carries protocol messages only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		srv := mcp.NewServer(mcp.Options{
			Responder: a.responder,
			Loader:    a.loader,
			Version:   version,
		})
		return srv.ServeStdio(cmd.Context(), os.Stdin, os.Stdout)
	},
}
