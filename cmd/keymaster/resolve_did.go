package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var resolveDidCmd = &cobra.Command{
	Use:   "resolve-did <did>",
	Short: "Resolve a DID to its current document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		resolved, err := a.Registry.ResolveDid(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format resolved document: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}
