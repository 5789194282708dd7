package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/goldex/pkg/app/core"
)

// Account commands open the database directly, so they cannot run while
// serve holds it.

func newDepositCmd(envPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <user_id> <grams>",
		Short: "Credit gold to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user_id %q: %w", args[0], err)
			}
			qty, err := core.ParseQuantity(args[1])
			if err != nil {
				return err
			}

			n, err := openNode(*envPath, nodeOptions{})
			if err != nil {
				return err
			}
			defer n.close()

			acc, err := n.exchange.Deposit(cmd.Context(), owner, qty)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d balance %s g\n", acc.OwnerID, acc.GoldBalance.StringFixed(core.QuantityPrecision))
			return nil
		},
	}
}

func newBalanceCmd(envPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user_id>",
		Short: "Show an account's gold balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user_id %q: %w", args[0], err)
			}

			n, err := openNode(*envPath, nodeOptions{})
			if err != nil {
				return err
			}
			defer n.close()

			acc, err := n.exchange.Account(cmd.Context(), owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d balance %s g\n", acc.OwnerID, acc.GoldBalance.StringFixed(core.QuantityPrecision))
			return nil
		},
	}
}
