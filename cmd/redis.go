package cmd

import "github.com/spf13/cobra"

// redisCmd groups subcommands that talk to the Redis dedup backend directly.
var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis backend utilities",
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
