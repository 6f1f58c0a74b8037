package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blesense",
		Short: "BLE temperature sensor client",
		Long: `Bluetooth Low Energy (BLE) client for a single temperature sensor:

- Scan for one peripheral by address and connect to it
- Discover the temperature characteristic, then read it or subscribe to it
- Decode each payload into a temperature and print it as it arrives
- Optionally forward readings to an MQTT broker

Use "decode" to check payloads offline.`,
		Version:       formatVersion(version),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetVersionTemplate(fmt.Sprintf("blesense {{.Version}} (commit %s, built %s)\n", commit, date))

	root.AddCommand(newMonitorCmd())
	root.AddCommand(newDecodeCmd())

	// Global flags
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Add -v as a short flag for --version
	root.Flags().BoolP("version", "v", false, "Show version information")
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
