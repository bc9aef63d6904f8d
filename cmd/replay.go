package cmd

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/fork"
	"github.com/crytic/multifork/chain/state"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// replayCmd represents the command provider for replay
var replayCmd = &cobra.Command{
	Use:   "replay <transaction hash>",
	Short: "Replays a historical transaction on a fork and prints the state it changed",
	Long: `Forks an endpoint immediately before a historical transaction, executes the transaction on the fork and
prints every touched account field that changed`,
	Args:          cobra.ExactArgs(1),
	RunE:          cmdRunReplay,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addForkFlags(replayCmd, false)
	rootCmd.AddCommand(replayCmd)
}

// accountSnapshot holds the fields of a touched account read through the registry.
type accountSnapshot struct {
	balance  *uint256.Int
	nonce    uint64
	codeSize int
	storage  map[common.Hash]common.Hash
}

// cmdRunReplay executes the replay CLI command
func cmdRunReplay(cmd *cobra.Command, args []string) error {
	if !isHexHash(args[0]) {
		return fmt.Errorf("invalid transaction hash %q", args[0])
	}
	txHash := common.HexToHash(args[0])

	endpoint, err := cmd.Flags().GetString("fork")
	if err != nil {
		return err
	}

	registry, err := newRegistry(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	defer registry.Close()

	if _, err = registry.CreateSelectFork(endpoint, fork.TransactionAnchor(txHash)); err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	activeFork, err := registry.ActiveFork()
	if err != nil {
		return err
	}
	cmdLogger.Info("Forked ", endpoint, " at ", activeFork.Anchor(), " (block ", activeFork.Environment().BlockNumber, ")")

	// The trace names the accounts and slots to compare
	diff, err := activeFork.Gateway().TransactionStateDiff(txHash)
	if err != nil {
		return err
	}
	touched := touchedSlots(diff)
	addrs := maps.Keys(touched)
	slices.SortFunc(addrs, func(a, b common.Address) int { return a.Cmp(b) })

	before := make(map[common.Address]accountSnapshot, len(addrs))
	for _, addr := range addrs {
		if before[addr], err = snapshotAccount(registry, addr, touched[addr]); err != nil {
			return err
		}
	}

	if err = registry.Transact(txHash, nil); err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}

	for _, addr := range addrs {
		after, err := snapshotAccount(registry, addr, touched[addr])
		if err != nil {
			return err
		}
		printAccountChanges(cmd, addr, before[addr], after, touched[addr])
	}
	return nil
}

// touchedSlots collects the accounts of a state diff along with every slot either side of the diff mentions, slots
// sorted.
func touchedSlots(diff *state.StateDiff) map[common.Address][]common.Hash {
	slotSets := make(map[common.Address]map[common.Hash]struct{})
	collect := func(accounts map[common.Address]state.AccountDiff) {
		for addr, account := range accounts {
			if slotSets[addr] == nil {
				slotSets[addr] = make(map[common.Hash]struct{})
			}
			for slot := range account.Storage {
				slotSets[addr][slot] = struct{}{}
			}
		}
	}
	collect(diff.Pre)
	collect(diff.Post)

	touched := make(map[common.Address][]common.Hash, len(slotSets))
	for addr, slotSet := range slotSets {
		slots := maps.Keys(slotSet)
		slices.SortFunc(slots, func(a, b common.Hash) int { return a.Cmp(b) })
		touched[addr] = slots
	}
	return touched
}

func snapshotAccount(access fork.StateAccess, addr common.Address, slots []common.Hash) (accountSnapshot, error) {
	var snapshot accountSnapshot
	var err error
	if snapshot.balance, err = access.GetBalance(addr); err != nil {
		return snapshot, err
	}
	if snapshot.nonce, err = access.GetNonce(addr); err != nil {
		return snapshot, err
	}
	code, err := access.GetCode(addr)
	if err != nil {
		return snapshot, err
	}
	snapshot.codeSize = len(code)

	snapshot.storage = make(map[common.Hash]common.Hash, len(slots))
	for _, slot := range slots {
		if snapshot.storage[slot], err = access.GetState(addr, slot); err != nil {
			return snapshot, err
		}
	}
	return snapshot, nil
}

// printAccountChanges writes the fields of addr that differ between the two snapshots.
func printAccountChanges(cmd *cobra.Command, addr common.Address, before accountSnapshot, after accountSnapshot, slots []common.Hash) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, addr.Hex())

	changed := false
	if !before.balance.Eq(after.balance) {
		fmt.Fprintf(out, "  balance  %s -> %s\n", formatEther(before.balance), formatEther(after.balance))
		changed = true
	}
	if before.nonce != after.nonce {
		fmt.Fprintf(out, "  nonce    %d -> %d\n", before.nonce, after.nonce)
		changed = true
	}
	if before.codeSize != after.codeSize {
		fmt.Fprintf(out, "  code     %d bytes -> %d bytes\n", before.codeSize, after.codeSize)
		changed = true
	}
	for _, slot := range slots {
		if before.storage[slot] != after.storage[slot] {
			fmt.Fprintf(out, "  slot %s\n    %s -> %s\n", slot.Hex(), before.storage[slot].Hex(), after.storage[slot].Hex())
			changed = true
		}
	}
	if !changed {
		fmt.Fprintln(out, "  unchanged")
	}
}
