package cache

import (
	"context"
	"errors"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

var _ StateCache = (*nonPersistentStateCache)(nil)
var _ StateCache = (*persistentCache)(nil)

// ErrCacheMiss is returned when the requested data has not been stored in the cache yet.
var ErrCacheMiss = errors.New("not found in cache")

// StateObject gives us a way to store state objects without the overhead of using geth's stateObject
type StateObject struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
}

// StateCache stores remote account data fetched for a single (endpoint, block height) pair. Entries are immutable once
// written, so any fork anchored at the same endpoint and height can reuse them.
type StateCache interface {
	GetStateObject(addr common.Address) (*StateObject, error)
	WriteStateObject(addr common.Address, data StateObject) error

	GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error)
	WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error

	Close() error
}

// NewPersistentCache creates a cache that persists its content to a file inside cacheDir. Each cache file is indexed
// by the RPC address (to separate network caches) and the block height. The cache is closed when ctx is cancelled.
func NewPersistentCache(ctx context.Context, cacheDir string, rpcAddr string, height uint64) (StateCache, error) {
	return newPersistentCache(ctx, cacheDir, rpcAddr, height)
}

// NewNonPersistentCache creates a cache that only lives in memory.
func NewNonPersistentCache() StateCache {
	return newNonPersistentStateCache()
}
