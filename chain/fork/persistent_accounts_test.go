package fork

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPersistentAccountSharedAcrossForks verifies writes to a persistent account are seen by every fork.
func TestPersistentAccountSharedAcrossForks(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	forkA := createFork(t, registry, 100)
	forkB := createFork(t, registry, 101)

	registry.MakePersistent(alice)
	selectFork(t, registry, forkA)
	registry.SetBalance(alice, u256(5))
	registry.SetState(alice, slotOne, common.HexToHash("0x99"))

	selectFork(t, registry, forkB)
	assert.EqualValues(t, 5, balanceOf(t, registry, alice))
	assert.Equal(t, common.HexToHash("0x99"), storageOf(t, registry, alice, slotOne))

	// Fields never written are fetched once, from the fork active at the first read
	nonce, err := registry.GetNonce(alice)
	require.NoError(t, err)
	assert.EqualValues(t, 4, nonce)
	selectFork(t, registry, forkA)
	nonce, err = registry.GetNonce(alice)
	require.NoError(t, err)
	assert.EqualValues(t, 4, nonce)
}

// TestNonPersistentAccountIsolated verifies writes to other accounts stay on the fork they were made on.
func TestNonPersistentAccountIsolated(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	forkA := createFork(t, registry, 100)
	forkB := createFork(t, registry, 101)

	selectFork(t, registry, forkA)
	registry.SetBalance(alice, u256(5))
	registry.SetState(contract, slotOne, common.HexToHash("0x99"))

	selectFork(t, registry, forkB)
	assert.EqualValues(t, 2000, balanceOf(t, registry, alice))
	assert.Equal(t, common.HexToHash("0x2b"), storageOf(t, registry, contract, slotOne))
	registry.SetBalance(alice, u256(6))

	selectFork(t, registry, forkA)
	assert.EqualValues(t, 5, balanceOf(t, registry, alice))
	assert.Equal(t, common.HexToHash("0x99"), storageOf(t, registry, contract, slotOne))
}

// TestPersistentPromotionPolicy verifies that promoting a diverged account keeps the active fork's state and discards
// every other fork's copy, and that demotion hands the shared state to the active fork only.
func TestPersistentPromotionPolicy(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	forkA := createFork(t, registry, 100)
	forkB := createFork(t, registry, 100)

	selectFork(t, registry, forkA)
	registry.SetBalance(alice, u256(1))
	selectFork(t, registry, forkB)
	registry.SetBalance(alice, u256(2))

	// Promote while A is active: A's view wins
	selectFork(t, registry, forkA)
	registry.MakePersistent(alice)
	assert.EqualValues(t, 1, balanceOf(t, registry, alice))
	selectFork(t, registry, forkB)
	assert.EqualValues(t, 1, balanceOf(t, registry, alice))

	// Promoting again is a no-op
	registry.SetBalance(alice, u256(3))
	registry.MakePersistent(alice)
	assert.EqualValues(t, 3, balanceOf(t, registry, alice))

	// Demote while B is active: B keeps the shared state, A falls back to its remote anchor
	registry.RevokePersistent(alice)
	assert.EqualValues(t, 3, balanceOf(t, registry, alice))
	selectFork(t, registry, forkA)
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))
}

// TestPromotionWithoutActiveFork verifies accounts written before any fork is selected can be promoted.
func TestPromotionWithoutActiveFork(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	id := createFork(t, registry, 100)

	registry.SetBalance(bob, u256(10))
	registry.MakePersistent(bob)

	selectFork(t, registry, id)
	assert.EqualValues(t, 10, balanceOf(t, registry, bob))
}

// TestRevokePersistent verifies revoked accounts are no longer shared by forks.
func TestRevokePersistent(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	forkA := createFork(t, registry, 100)
	forkB := createFork(t, registry, 100)

	registry.MakePersistent(alice, bob)
	assert.True(t, registry.IsPersistent(alice))
	assert.True(t, registry.IsPersistent(bob))

	registry.RevokePersistent(alice)
	assert.False(t, registry.IsPersistent(alice))
	assert.True(t, registry.IsPersistent(bob))

	// Revoking an address that is not persistent is a no-op
	registry.RevokePersistent(contract)
	assert.False(t, registry.IsPersistent(contract))

	selectFork(t, registry, forkA)
	registry.SetBalance(alice, u256(42))
	selectFork(t, registry, forkB)
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))
}

// TestPersistentAccountSetAddresses verifies the set's listing is ordered and free of duplicates.
func TestPersistentAccountSetAddresses(t *testing.T) {
	registry := newTestRegistry(t, newTestNode(t))
	set := registry.PersistentAccounts()

	set.Extend(contract, alice, bob, alice)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []common.Address{bob, alice, contract}, set.Addresses())

	set.RemoveMany(alice, contract)
	assert.Equal(t, []common.Address{bob}, set.Addresses())
	assert.False(t, set.Contains(alice))
	assert.True(t, set.Contains(bob))
}
