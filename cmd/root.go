package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/netsoul/cmd/gen"
)

var (
	// Log at debug level
	debug bool
)

var RootCmd = &cobra.Command{
	Use:   "netsoul",
	Short: "A NetSoul client",
	Long: `A NetSoul client, and a small NetSoul server to test it against.

Configuration is read from NETSOUL_* environment variables, and from
.env.local when present. Flags win over the environment.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level, including every line on the wire")

	RootCmd.AddCommand(ConnectCmd)
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
