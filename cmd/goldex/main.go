package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envPath string

	root := &cobra.Command{
		Use:           "goldex",
		Short:         "Gold marketplace: exact-price FIFO matching with tiered commission",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// "" means load .env from the current directory
	root.PersistentFlags().StringVar(&envPath, "env", "", "path to .env file")

	root.AddCommand(
		newServeCmd(&envPath),
		newDepositCmd(&envPath),
		newBalanceCmd(&envPath),
	)
	return root
}
