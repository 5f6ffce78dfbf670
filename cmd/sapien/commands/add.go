package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sapien-ai/sapien-go/internal/logging"
	"github.com/sapien-ai/sapien-go/memory"
)

// NewAddCmd constructs the `sapien add` command, which stores a single chat
// message and schedules its embedding in the background.
func NewAddCmd() *cobra.Command {
	var session string
	var role string
	var content string
	var wait bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a chat message in the memory layer",
		Long: `Store a single chat message in MongoDB and schedule its embedding.

The message identifier is printed as soon as the document write completes.
Embedding and vector indexing happen in the background; pass --wait to block
until the message is searchable.

Examples:
  sapien add --session support-42 --role user --content "how do I reset my password?"
  sapien add --session support-42 --role assistant --content "click forgot password" --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if !memory.Role(role).Valid() {
				return fmt.Errorf("add: role must be one of: user, assistant, system")
			}

			stack, err := buildMemoryStack(ctx, log)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			defer stack.close()

			id, err := stack.client.AddMessage(ctx, session, memory.Role(role), content, time.Time{})
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}

			if wait {
				stack.client.Flush()
			}

			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session the message belongs to (required)")
	cmd.Flags().StringVarP(&role, "role", "r", "user", "Message author: user, assistant, or system")
	cmd.Flags().StringVarP(&content, "content", "c", "", "Message text (required)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the message is embedded and indexed")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("content")

	return cmd
}
