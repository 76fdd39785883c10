package main

import (
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Customer identity reconciliation service",
	Long: `reconcile links contact records that share an email address or phone
number into identity chains and serves their consolidated view over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded before reading the environment")
}
