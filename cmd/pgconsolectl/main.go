// pgconsolectl is a thin operator CLI over a running gateway's HTTP API.
package main

import (
	"os"

	"github.com/pgconsole/gateway/internal/clicmd"
)

func main() {
	if err := clicmd.Execute(); err != nil {
		os.Exit(1)
	}
}
