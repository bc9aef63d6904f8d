package fork

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNestedCheckpoints verifies reverting a checkpoint undoes exactly the writes made after it.
func TestNestedCheckpoints(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	_, err := registry.CreateSelectFork("mainnet", BlockAnchor(100))
	require.NoError(t, err)

	outer := registry.Checkpoint()
	registry.SetState(contract, slotOne, common.HexToHash("0x01"))
	registry.SetBalance(alice, u256(1))

	inner := registry.Checkpoint()
	registry.SetState(contract, slotOne, common.HexToHash("0x02"))
	registry.SetState(contract, slotTwo, common.HexToHash("0x03"))
	registry.SetNonce(alice, 50)

	registry.Revert(inner)
	assert.Equal(t, common.HexToHash("0x01"), storageOf(t, registry, contract, slotOne))
	assert.Equal(t, common.Hash{}, storageOf(t, registry, contract, slotTwo))
	assert.EqualValues(t, 1, balanceOf(t, registry, alice))
	nonce, err := registry.GetNonce(alice)
	require.NoError(t, err)
	assert.EqualValues(t, 3, nonce)

	registry.Revert(outer)
	assert.Equal(t, common.HexToHash("0x2a"), storageOf(t, registry, contract, slotOne))
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))

	// Reverted checkpoints cannot be used again
	assert.Panics(t, func() { registry.Revert(inner) })
	assert.Panics(t, func() { registry.Commit(outer) })
}

// TestRevertPersistentWrites verifies persistent accounts are rolled back with the journal, even from another fork.
func TestRevertPersistentWrites(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	forkA := createFork(t, registry, 100)
	forkB := createFork(t, registry, 101)
	registry.MakePersistent(bob)

	selectFork(t, registry, forkA)
	registry.SetBalance(bob, u256(10))
	checkpoint := registry.Checkpoint()
	registry.SetBalance(bob, u256(20))
	registry.SetState(bob, slotOne, common.HexToHash("0x07"))
	registry.SetState(contract, slotOne, common.HexToHash("0x08"))

	// Fork switches are not journaled and do not prevent the revert
	selectFork(t, registry, forkB)
	registry.Revert(checkpoint)
	assert.EqualValues(t, 10, balanceOf(t, registry, bob))
	assert.Equal(t, common.Hash{}, storageOf(t, registry, bob, slotOne))

	id, _ := registry.ActiveForkId()
	assert.Equal(t, forkB, id)

	// Writes on the fork that was active when the checkpoint was taken are reverted too
	selectFork(t, registry, forkA)
	assert.Equal(t, common.HexToHash("0x2a"), storageOf(t, registry, contract, slotOne))
}

// TestRevertAcrossPromotion verifies writes made before and after a promotion are both reverted.
func TestRevertAcrossPromotion(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	forkA := createFork(t, registry, 100)
	forkB := createFork(t, registry, 100)
	selectFork(t, registry, forkA)

	checkpoint := registry.Checkpoint()
	registry.SetBalance(alice, u256(1))
	registry.MakePersistent(alice)
	registry.SetBalance(alice, u256(2))

	registry.Revert(checkpoint)
	assert.True(t, registry.IsPersistent(alice))
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))
	selectFork(t, registry, forkB)
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))
}

// TestCommitCheckpoint verifies committed writes still belong to the enclosing checkpoint.
func TestCommitCheckpoint(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	_, err := registry.CreateSelectFork("mainnet", BlockAnchor(100))
	require.NoError(t, err)

	outer := registry.Checkpoint()
	inner := registry.Checkpoint()
	registry.SetBalance(alice, u256(1))
	registry.Commit(inner)
	assert.EqualValues(t, 1, balanceOf(t, registry, alice))
	assert.Equal(t, 1, registry.journal.length())

	registry.Revert(outer)
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))

	// Committing the last checkpoint drops every entry
	last := registry.Checkpoint()
	registry.SetBalance(alice, u256(2))
	registry.Commit(last)
	assert.Zero(t, registry.journal.length())
	assert.EqualValues(t, 2, balanceOf(t, registry, alice))
}

// TestRevertCreateAndDeleteAccount verifies account resets are undone as a whole.
func TestRevertCreateAndDeleteAccount(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	_, err := registry.CreateSelectFork("mainnet", BlockAnchor(100))
	require.NoError(t, err)

	checkpoint := registry.Checkpoint()
	registry.DeleteAccount(contract)
	code, err := registry.GetCode(contract)
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Equal(t, common.Hash{}, storageOf(t, registry, contract, slotOne))
	registry.Revert(checkpoint)

	code, err = registry.GetCode(contract)
	require.NoError(t, err)
	assert.Equal(t, contractCode, code)
	assert.Equal(t, common.HexToHash("0x2a"), storageOf(t, registry, contract, slotOne))

	// Created accounts keep their balance but never read remote storage
	checkpoint = registry.Checkpoint()
	registry.CreateAccount(alice)
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))
	nonce, err := registry.GetNonce(alice)
	require.NoError(t, err)
	assert.Zero(t, nonce)
	calls := node.Calls("eth_getStorageAt")
	assert.Equal(t, common.Hash{}, storageOf(t, registry, alice, slotTwo))
	assert.Equal(t, calls, node.Calls("eth_getStorageAt"))

	registry.Revert(checkpoint)
	nonce, err = registry.GetNonce(alice)
	require.NoError(t, err)
	assert.EqualValues(t, 3, nonce)
}
