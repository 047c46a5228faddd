package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "maid",
		Short:        "maid keeps chore rotations of a team and settles who does the chore today",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")

	cmd.AddCommand(newServeCommand(&envFile))
	cmd.AddCommand(newTokenCommand(&envFile))

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
