package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt <msg> <did>",
	Short: "Encrypt a message to a DID and anchor it as an envelope",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		envelopeDID, err := a.Engine.Encrypt(cmd.Context(), []byte(args[0]), args[1])
		if err != nil {
			return err
		}
		fmt.Println(envelopeDID)
		return nil
	},
}
