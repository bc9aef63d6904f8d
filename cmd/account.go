package cmd

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// accountCmd represents the command provider for account
var accountCmd = &cobra.Command{
	Use:           "account <address>",
	Short:         "Prints the balance, nonce and code size of an account on a fork",
	Long:          `Prints the balance, nonce and code size of an account on a fork`,
	Args:          cobra.ExactArgs(1),
	RunE:          cmdRunAccount,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addForkFlags(accountCmd, true)
	rootCmd.AddCommand(accountCmd)
}

// cmdRunAccount executes the account CLI command
func cmdRunAccount(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	registry, err := newRegistry(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the account command", err)
		return err
	}
	defer registry.Close()

	if _, err = selectForkFromFlags(cmd, registry); err != nil {
		cmdLogger.Error("Failed to run the account command", err)
		return err
	}

	balance, err := registry.GetBalance(addr)
	if err != nil {
		return err
	}
	nonce, err := registry.GetNonce(addr)
	if err != nil {
		return err
	}
	code, err := registry.GetCode(addr)
	if err != nil {
		return err
	}

	printField(cmd, "Address", addr.Hex())
	printField(cmd, "Balance", formatEther(balance))
	printField(cmd, "Nonce", nonce)
	printField(cmd, "Code size", fmt.Sprintf("%d bytes", len(code)))
	return nil
}

// formatEther formats a wei amount as ether, followed by the exact wei amount.
func formatEther(wei *uint256.Int) string {
	amount := wei.ToBig()
	ether := decimal.NewFromBigInt(amount, -weiPerEther)
	return fmt.Sprintf("%s ETH (%s wei)", ether.String(), amount.String())
}
