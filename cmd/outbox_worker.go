/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/daffahilmyf/go-imagegen/internal/bootstrap"
	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox-worker",
	Short: "Publish outbox events to NATS JetStream",
	Run:   runWith("outbox-worker", bootstrap.RunOutbox),
}

func init() {
	rootCmd.AddCommand(outboxCmd)
}
