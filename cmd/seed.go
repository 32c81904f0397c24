/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"

	"github.com/daffahilmyf/go-imagegen/internal/bootstrap"
	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/spf13/cobra"
)

var seedOpts bootstrap.SeedOptions

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample accounts and print dev tokens",
	Run: runWith("seed", func(ctx context.Context, cfg config.Config) error {
		return bootstrap.Seed(ctx, cfg, seedOpts, os.Stdout)
	}),
}

func init() {
	seedCmd.Flags().IntVar(&seedOpts.Count, "count", 10, "number of accounts to seed")
	seedCmd.Flags().IntVar(&seedOpts.BatchSize, "batch-size", 100, "batch size for inserts")
	seedCmd.Flags().IntVar(&seedOpts.Tokens, "tokens", 3, "number of accounts to print bearer tokens for")
	seedCmd.Flags().DurationVar(&seedOpts.TokenTTL, "token-ttl", 0, "bearer token lifetime (default 24h)")
	rootCmd.AddCommand(seedCmd)
}
