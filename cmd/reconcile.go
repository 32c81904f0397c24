/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"

	"github.com/daffahilmyf/go-imagegen/internal/bootstrap"
	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/spf13/cobra"
)

var reconcileDryRun bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Delete stored images that no row references",
	Long: `Compare the object store bucket with generated_images and delete objects
older than reconcile.min_age that have no row, then prune idempotency keys
older than reconcile.idempotency_ttl. Runs once, or on reconcile.schedule
(cron syntax) when it is set.`,
	Run: runWith("reconcile", func(ctx context.Context, cfg config.Config) error {
		if reconcileDryRun {
			cfg.Reconcile.DryRun = true
		}
		return bootstrap.RunReconcile(ctx, cfg)
	}),
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "report orphans without deleting them")
	rootCmd.AddCommand(reconcileCmd)
}
