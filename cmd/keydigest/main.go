package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/mirzahilmi/sealedreport/internal/sealedbox"
	"github.com/spf13/cobra"
)

// Prints the fingerprint reported by the key directory for a base64 reviewer
// public key, so operators can compare it against what clients see.
func main() {
	cmd := &cobra.Command{
		Use:          "keydigest <base64-public-key>",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			key, err := sealedbox.ParsePublicKey(raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealedbox.Fingerprint(key))
			return nil
		},
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
