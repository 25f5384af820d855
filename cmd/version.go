package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/netsoul/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of this binary",
	Run: func(cmd *cobra.Command, args []string) {
		info := meta.GetInfo()

		version := info.Version
		if version == "" {
			version = "dev"
		}

		fmt.Fprintf(cmd.OutOrStdout(), "netsoul %s (%s@%s) built %s\n", version, info.Build, info.Branch, info.BuildTime)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", info.GoVersion, info.Platform, info.GoTag)
	},
}
