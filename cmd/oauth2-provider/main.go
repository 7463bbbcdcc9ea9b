// Command oauth2-provider runs the OAuth 2.0 provider with the reference host.
package main

import (
	"os"

	"github.com/giantswarm/oauth2-provider/cmd/oauth2-provider/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
