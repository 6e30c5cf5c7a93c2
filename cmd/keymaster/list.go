package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities in the wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		for _, entry := range a.Identity.ListIds() {
			marker := " "
			if entry.IsCurrent {
				marker = "*"
			}
			fmt.Printf("%s %-20s %s\n", marker, entry.Name, entry.Identity.DID)
		}
		return nil
	},
}
