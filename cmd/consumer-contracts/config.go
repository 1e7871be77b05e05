package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/consumer-contracts/internal/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, e := range c.cfg.Entries() {
				value := e.Value
				if value == "" {
					value = "(not set)"
				}
				fmt.Fprintf(out, "%s: %s\n", e.Key, value)
			}
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file locations",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user: %s\n", config.GetUserConfigPath())
			project := c.configFile
			if project == "" {
				project = config.GetProjectConfigPath()
			}
			if project == "" {
				project = "(none)"
			}
			fmt.Fprintf(out, "project: %s\n", project)
		},
	})
	return cmd
}
