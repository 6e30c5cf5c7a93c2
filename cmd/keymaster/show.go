package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		name, id, err := a.Identity.CurrentIdentity()
		if err != nil {
			return err
		}
		fmt.Printf("name:    %s\n", name)
		fmt.Printf("did:     %s\n", id.DID)
		fmt.Printf("account: %d\n", id.Account)
		fmt.Printf("index:   %d\n", id.Index)
		fmt.Printf("owned:   %d\n", len(id.Owned))
		fmt.Printf("held:    %d\n", len(id.Held))
		return nil
	},
}
