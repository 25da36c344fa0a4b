package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"straitjacket/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sjfmt, version %s\n", version.Version)
	},
}
