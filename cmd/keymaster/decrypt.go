package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// decryptCmd mirrors encrypt's two-argument shape: the envelope DID to
// decrypt, and the local identity's DID to decrypt as (selected as
// current first if it isn't already).
var decryptCmd = &cobra.Command{
	Use:   "decrypt <envelope-did> <did>",
	Short: "Decrypt an envelope DID as the given local identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := selectIdentityByDID(a, args[1]); err != nil {
			return err
		}
		plaintext, err := a.Engine.Decrypt(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(string(plaintext))
		return nil
	},
}

func selectIdentityByDID(a *app, did string) error {
	for name, id := range a.Wallet.Ids {
		if id.DID == did {
			return a.Identity.UseId(name)
		}
	}
	return fmt.Errorf("no local identity controls %s", did)
}
