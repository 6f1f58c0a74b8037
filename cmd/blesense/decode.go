package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/blesense/internal/sensor"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Decode sensor payloads given as hex",
		Long: `Decodes payloads offline with the same rule the monitor uses: the value is
taken from hex characters 10 to 14, integer byte first, hundredths second.`,
		Example: `  blesense decode 0000000000233b
  blesense decode 00:00:00:00:00:23:3b 0102`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDecode,
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, arg := range args {
		payload := normalizeHexArg(arg)
		value, err := sensor.DecodeHex(payload)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: error: %v\n", arg, err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", arg, sensor.Reading{Value: value}.String())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d payloads could not be decoded", failed, len(args))
	}
	return nil
}

// normalizeHexArg drops the separators people paste between bytes.
func normalizeHexArg(s string) string {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	return strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
}
