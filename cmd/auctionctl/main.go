// Command auctionctl runs the sealed-bid auction engine: `serve` boots
// the HTTP API and background workers, `migrate` applies the cluster
// backend's schema.
package main

import (
	"fmt"
	"os"

	"auctionhouse/cmd/auctionctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
