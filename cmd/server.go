/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/daffahilmyf/go-imagegen/internal/bootstrap"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the HTTP API",
	Long: `Serve the generation relay endpoints (/api/image/*), the typed gallery,
token and prompt procedures (/api/v1/*), the healthcheck and /metrics.

Requires Postgres, NATS JetStream (object store, and relay queue unless
relay.transport is amqp) and Redis for pending requests and rate limits.`,
	Run: runWith("server", bootstrap.Run),
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
