package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sapien-ai/sapien-go/internal/logging"
)

// NewInitCmd constructs the `sapien init` command, which creates the MongoDB
// indexes and the Qdrant collection. Safe to run repeatedly.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the MongoDB indexes and Qdrant collection",
		Long: `Initialise the backing stores for the memory layer.

Creates the MongoDB secondary indexes (unique session identifier, session +
timestamp compound, message TTL) and the Qdrant collection with its session
payload index. Existing indexes and collections are left untouched, so the
command is safe to run on every deploy.

Examples:
  sapien init
  QDRANT_COLLECTION=staging_memory sapien init`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			stack, err := buildMemoryStack(ctx, log)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			defer stack.close()

			if err := stack.client.InitIndexes(ctx); err != nil {
				return fmt.Errorf("init: %w", err)
			}

			fmt.Println("indexes and collection ready")
			return nil
		},
	}
}
