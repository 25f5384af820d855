package gen

import (
	"github.com/spf13/cobra"
)

// RootCmd groups the generators for files shipped alongside the binary.
var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate files that ship with netsoul",
	Long:  `Generate files that ship with netsoul, such as its man pages`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
