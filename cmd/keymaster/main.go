// Command keymaster is the CLI front end over the wallet core: identity
// lifecycle, DID resolution, and encrypted messaging.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
