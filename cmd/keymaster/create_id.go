package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createIdRegistry string

var createIdCmd = &cobra.Command{
	Use:   "create-id <name>",
	Short: "Create a new identity and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		did, err := a.Identity.CreateId(cmd.Context(), args[0], createIdRegistry)
		if err != nil {
			return err
		}
		fmt.Println(did)
		return nil
	},
}

func init() {
	createIdCmd.Flags().StringVar(&createIdRegistry, "registry", "peerbit", "anchoring registry (peerbit, BTC, tBTC)")
}
