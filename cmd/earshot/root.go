package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "earshot",
		Short:        "Live speech sessions and meeting notes",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("env-file") {
				return godotenv.Load(envFile)
			}
			// A missing .env is fine; the environment may already be populated.
			_ = godotenv.Load()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")

	root.AddCommand(newListenCmd(), newNotesCmd())
	return root
}
