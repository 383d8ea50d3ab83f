// Command authcored runs a small authentication daemon exposing the PKCE
// login/callback endpoints and a set of pipeline-protected demo routes.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "authcored",
		Short:        "Authentication core daemon",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
