// codestory turns an uploaded source archive into narrated explanations:
// a file tree, an architecture diagram, a chat-style walkthrough and a
// glossary. `serve` runs the HTTP API; `mcp` runs the read-only MCP
// companion on stdio.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codestory/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "codestory",
		Short:         "Explain uploaded codebases through generated stories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf(
		"CodeStory\nVersion: %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\nVector Extension: %v\n",
		version, buildTime, storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable))

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(serveCmd(), mcpCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
