package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/consumer-contracts/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", version.Name, version.Get())
		},
	}
}
