/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/daffahilmyf/go-imagegen/internal/bootstrap"
	"github.com/spf13/cobra"
)

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Run a JetStream consumer for image events",
	Long: `Consume image.generated and image.deleted events, record each in audit_logs
and delete the stored object of every deleted image. Failed events are
redelivered with nats.consumer_backoff and dead-lettered after
nats.consumer_max_deliver attempts.`,
	Run: runWith("consumer", bootstrap.RunConsumer),
}

func init() {
	rootCmd.AddCommand(consumerCmd)
}
