/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/daffahilmyf/go-imagegen/internal/bootstrap"
	"github.com/spf13/cobra"
)

var relayWorkerCmd = &cobra.Command{
	Use:   "relay-worker",
	Short: "Run queued image generations and deliver signed callbacks",
	Long: `Consume generation requests from the relay queue (NATS JetStream or AMQP,
per relay.transport), call the image provider and POST the signed result
envelope to relay.callback_url.`,
	Run: runWith("relay-worker", bootstrap.RunRelayWorker),
}

func init() {
	rootCmd.AddCommand(relayWorkerCmd)
}
