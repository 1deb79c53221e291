package cmd

import (
	"fmt"

	"github.com/AnyoneClown/ds-translator/dstranslator"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the application",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf(
			"version=%s commit=%s built: %s\n",
			dstranslator.Version,
			dstranslator.CommitSHA,
			dstranslator.BuildTime,
		)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(versionCmd)
}
