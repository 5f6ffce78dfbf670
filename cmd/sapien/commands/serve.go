package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sapien-ai/sapien-go/embedder"
	"github.com/sapien-ai/sapien-go/internal/logging"
	"github.com/sapien-ai/sapien-go/internal/server"
)

// NewServeCmd constructs the `sapien serve` command, which starts the HTTP
// server exposing the memory API over REST.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sapien HTTP server",
		Long: `Start the sapien HTTP server on localhost.

The server exposes the memory operations over REST:

  POST /api/messages   store a chat message
  GET  /api/context    retrieve relevant messages for a query
  GET  /api/health     liveness probe
  GET  /api/ready      readiness probe (checks MongoDB and Qdrant)
  GET  /metrics        Prometheus metrics

Set SAPIEN_API_KEY to require Bearer authentication on the data-plane routes.

Examples:
  sapien serve
  sapien serve --port 9090
  EMBEDDING_PROVIDER=openai sapien serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("embedding_provider", embedder.Backend()))

			// Flags win over SERVER_HOST/SERVER_PORT, which config.Load may
			// have populated from the YAML file.
			host, port = resolveServerAddr(cmd.Flags().Changed("host"), cmd.Flags().Changed("port"), host, port)

			stack, err := buildMemoryStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stack.close()

			// Make sure the backing indexes exist before accepting traffic.
			if err := stack.client.InitIndexes(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(stack.client, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: stack.pingers(),
				APIKey:  os.Getenv("SAPIEN_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
