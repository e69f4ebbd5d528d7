package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AIINA17/Livekit-Biometric/cmd/voicetrust/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, build.String())
		if verbose {
			fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
			if p, err := paths(); err == nil {
				fmt.Fprintf(out, "  config: %s\n", p.Dir)
			} else {
				fmt.Fprintf(out, "  config: (unavailable: %v)\n", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
