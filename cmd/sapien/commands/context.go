package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sapien-ai/sapien-go/internal/logging"
)

// NewContextCmd constructs the `sapien context` command, which retrieves the
// messages in a session most semantically relevant to a query.
func NewContextCmd() *cobra.Command {
	var session string
	var query string
	var topK int

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Retrieve the most relevant messages for a query",
		Long: `Search a session's messages by semantic similarity to a query.

The query is embedded with the configured embedding backend and matched
against the session's vectors in Qdrant. Results are printed most relevant
first, one message per line.

Examples:
  sapien context --session support-42 --query "password reset"
  sapien context --session support-42 --query "billing" -k 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			stack, err := buildMemoryStack(ctx, log)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			defer stack.close()

			msgs, err := stack.client.GetContext(ctx, session, query, topK)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}

			if len(msgs) == 0 {
				fmt.Println("no matching messages")
				return nil
			}

			for _, m := range msgs {
				fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session to search (required)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Query text to rank against (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of results (default: 10)")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
