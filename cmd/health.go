package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/market-intel/internal/credential"
	"github.com/sells-group/market-intel/internal/intel"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe provider connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sel := credential.NewSelector(cfg.ProviderKeyVar(), cfg.Credential.KeyFile, cfg.ProviderKey())
		if !sel.HasCredential(ctx) {
			return eris.Errorf("no API key configured (%s)", cfg.ProviderKeyVar())
		}

		client, err := initIntel(cfg, sel, nil)
		if err != nil {
			return err
		}

		status := client.CheckConnectivity(ctx)
		fmt.Printf("%s: %s (%s", client.Provider(), status.Status, status.Message)
		if status.LatencyMS > 0 {
			fmt.Printf(", %dms", status.LatencyMS)
		}
		fmt.Println(")")
		fmt.Fprintf(os.Stderr, "credential source: %s\n", sel.Source())

		if status.Status == intel.StateOffline {
			return eris.New("provider offline")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
