package cache

import (
	"sync"

	"github.com/crytic/medusa-geth/common"
)

// nonPersistentStateCache provides a thread-safe cache for storing state objects and slots without persisting to disk.
// Stored objects are copied on the way in and out so callers can never mutate a cached entry.
type nonPersistentStateCache struct {
	stateObjectLock  sync.RWMutex
	stateObjectCache map[common.Address]StateObject

	slotLock  sync.RWMutex
	slotCache map[common.Address]map[common.Hash]common.Hash
}

func newNonPersistentStateCache() *nonPersistentStateCache {
	return &nonPersistentStateCache{
		stateObjectCache: make(map[common.Address]StateObject),
		slotCache:        make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// GetStateObject returns a copy of the cached state object, or ErrCacheMiss.
func (s *nonPersistentStateCache) GetStateObject(addr common.Address) (*StateObject, error) {
	s.stateObjectLock.RLock()
	defer s.stateObjectLock.RUnlock()

	obj, ok := s.stateObjectCache[addr]
	if !ok {
		return nil, ErrCacheMiss
	}
	copied := obj.copy()
	return &copied, nil
}

// WriteStateObject stores a copy of data. Existing entries are never replaced.
func (s *nonPersistentStateCache) WriteStateObject(addr common.Address, data StateObject) error {
	s.stateObjectLock.Lock()
	defer s.stateObjectLock.Unlock()

	if _, exists := s.stateObjectCache[addr]; !exists {
		s.stateObjectCache[addr] = data.copy()
	}
	return nil
}

// GetSlotData returns the cached storage slot value, or ErrCacheMiss.
func (s *nonPersistentStateCache) GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error) {
	s.slotLock.RLock()
	defer s.slotLock.RUnlock()

	if data, ok := s.slotCache[addr][slot]; ok {
		return data, nil
	}
	return common.Hash{}, ErrCacheMiss
}

// WriteSlotData stores a storage slot value. Existing entries are never replaced.
func (s *nonPersistentStateCache) WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error {
	s.slotLock.Lock()
	defer s.slotLock.Unlock()

	slots, ok := s.slotCache[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		s.slotCache[addr] = slots
	}
	if _, exists := slots[slot]; !exists {
		slots[slot] = data
	}
	return nil
}

// Close is a no-op, the cache only lives in memory.
func (s *nonPersistentStateCache) Close() error {
	return nil
}

// copy returns a deep copy of the state object.
func (o StateObject) copy() StateObject {
	copied := StateObject{Nonce: o.Nonce}
	if o.Balance != nil {
		copied.Balance = o.Balance.Clone()
	}
	if o.Code != nil {
		copied.Code = common.CopyBytes(o.Code)
	}
	return copied
}
