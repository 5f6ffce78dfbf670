// Package commands defines all Cobra CLI commands for the sapien binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/sapien-ai/sapien-go/internal/audit"
	"github.com/sapien-ai/sapien-go/internal/config"
	"github.com/sapien-ai/sapien-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sapien",
		Short: "Sapien — semantic memory for chat sessions",
		Long: `Sapien stores chat messages in MongoDB, embeds them into dense vectors,
and indexes the vectors in Qdrant for session-scoped semantic retrieval.

Use 'sapien add' to store messages, 'sapien context' to retrieve the most
relevant messages for a query, and 'sapien serve' to expose the same
operations over a REST API.

The embedding backend is selected via the EMBEDDING_PROVIDER environment
variable or a YAML config file (~/.sapien/config.yaml).
See 'sapien --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.sapien/config.yaml)")

	root.AddCommand(
		NewAddCmd(),
		NewContextCmd(),
		NewInitCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
