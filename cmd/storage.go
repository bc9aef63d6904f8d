package cmd

import (
	"github.com/spf13/cobra"
)

// storageCmd represents the command provider for storage
var storageCmd = &cobra.Command{
	Use:           "storage <address> <slot>",
	Short:         "Prints the value of a storage slot on a fork",
	Long:          `Prints the value of a storage slot on a fork. The slot is a hex value of at most 32 bytes.`,
	Args:          cobra.ExactArgs(2),
	RunE:          cmdRunStorage,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addForkFlags(storageCmd, true)
	rootCmd.AddCommand(storageCmd)
}

// cmdRunStorage executes the storage CLI command
func cmdRunStorage(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	slot, err := parseHash(args[1])
	if err != nil {
		return err
	}

	registry, err := newRegistry(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the storage command", err)
		return err
	}
	defer registry.Close()

	if _, err = selectForkFromFlags(cmd, registry); err != nil {
		cmdLogger.Error("Failed to run the storage command", err)
		return err
	}

	value, err := registry.GetState(addr, slot)
	if err != nil {
		return err
	}
	printField(cmd, "Slot", slot.Hex())
	printField(cmd, "Value", value.Hex())
	return nil
}
