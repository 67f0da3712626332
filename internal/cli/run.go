package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collector service",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if a.ShareDir == "" {
			// Required flag, but a missing sharedir is a usage problem, not
			// a failure: print help and exit cleanly.
			return cmd.Usage()
		}
		return a.Run(cmd.Context())
	},
}
