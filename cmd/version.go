// =============================================================================
// XML Fee Reconciler - Version Command
// =============================================================================
//
// COMMAND USAGE:
//   feerecon version [--short]
//
// OUTPUT:
//   XML Fee Reconciler
//   Version:    1.0.0
//   Build Date: 2024-01-01
//   Go Version: go1.24.0
//   Platform:   linux/amd64
//
// Version and BuildDate are stamped at build time:
//   go build -ldflags "\
//     -X 'github.com/ginjaninja78/xml-fee-reconciler/cmd.Version=1.0.0' \
//     -X 'github.com/ginjaninja78/xml-fee-reconciler/cmd.BuildDate=2024-01-01'"
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is the application version.
	Version = "1.0.0"

	// BuildDate is the date the binary was built.
	BuildDate = "unknown"
)

// versionShort prints the bare version number.
var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Long:  `Display the application version, build date, Go runtime and platform.`,
	Run: func(cmd *cobra.Command, args []string) {
		writeVersion(cmd.OutOrStdout(), versionShort)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
}

func writeVersion(w io.Writer, short bool) {
	if short {
		fmt.Fprintln(w, Version)
		return
	}
	fmt.Fprintln(w, "XML Fee Reconciler")
	fmt.Fprintf(w, "Version:    %s\n", Version)
	fmt.Fprintf(w, "Build Date: %s\n", BuildDate)
	fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	fmt.Fprintf(w, "Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
