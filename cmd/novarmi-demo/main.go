// Command novarmi-demo is a small two-sided exerciser for the rmi
// runtime: serve exports a Greeter object and blocks accepting
// invocations, dial imports it from a peer already running serve and
// drives an echo call and a call expected to fail remotely.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "novarmi-demo",
		Short: "novarmi demo peer",
		Long:  "Run one side of a bidirectional RMI session: serve exports a Greeter, dial calls one already serving",
	}

	rootCmd.AddCommand(serveCmd(), dialCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
