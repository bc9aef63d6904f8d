package state

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

/*
StateBackend defines an interface for fetching account state pinned to a single block height from a different source,
such as a remote RPC server. Implementations must return zero values for accounts and slots that do not exist.
*/
type StateBackend interface {
	GetStorageAt(addr common.Address, slot common.Hash) (common.Hash, error)
	GetStateObject(addr common.Address) (*uint256.Int, uint64, []byte, error)
}

var _ StateBackend = (*EmptyBackend)(nil)
var _ StateBackend = (*RPCBackend)(nil)

// EmptyBackend is a StateBackend with no remote data. It backs state that is not anchored to any endpoint.
type EmptyBackend struct{}

func (d EmptyBackend) GetStorageAt(address common.Address, slot common.Hash) (common.Hash, error) {
	return common.Hash{}, nil
}

func (d EmptyBackend) GetStateObject(address common.Address) (*uint256.Int, uint64, []byte, error) {
	return uint256.NewInt(0), 0, nil, nil
}
