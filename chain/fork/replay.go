package fork

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/state"
	"github.com/crytic/multifork/chain/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// StateAccess is the state of one fork as seen by a TransactionExecutor. Reads may fetch from the fork's remote anchor.
type StateAccess interface {
	GetBalance(addr common.Address) (*uint256.Int, error)
	GetNonce(addr common.Address) (uint64, error)
	GetCode(addr common.Address) ([]byte, error)
	GetState(addr common.Address, slot common.Hash) (common.Hash, error)

	SetBalance(addr common.Address, balance *uint256.Int)
	SetNonce(addr common.Address, nonce uint64)
	SetCode(addr common.Address, code []byte)
	SetState(addr common.Address, slot common.Hash, value common.Hash)

	CreateAccount(addr common.Address)
	DeleteAccount(addr common.Address)
}

var _ StateAccess = (*stateView)(nil)

// TransactionExecutor re-executes a historical transaction on top of a fork's state. Implementations must apply the
// transaction's writes through stateAccess only.
type TransactionExecutor interface {
	ExecuteTransaction(fork *Fork, stateAccess StateAccess, tx *state.Transaction) error
}

/*
StateDiffExecutor reproduces a transaction's writes from the prestateTracer diff its endpoint reports, instead of
executing it. The result matches the on-chain post-state of every account the transaction touched, provided the
endpoint serves debug_traceTransaction.
*/
type StateDiffExecutor struct{}

var _ TransactionExecutor = (*StateDiffExecutor)(nil)

// NewStateDiffExecutor returns a StateDiffExecutor.
func NewStateDiffExecutor() *StateDiffExecutor {
	return &StateDiffExecutor{}
}

// ExecuteTransaction applies the diff of tx to stateAccess.
func (e *StateDiffExecutor) ExecuteTransaction(fork *Fork, stateAccess StateAccess, tx *state.Transaction) error {
	diff, err := fork.Gateway().TransactionStateDiff(tx.Hash)
	if err != nil {
		return err
	}
	applyStateDiff(stateAccess, diff)
	return nil
}

// applyStateDiff applies post values of diff. Accounts only found in Pre were deleted, slots only found in a Pre
// account were cleared.
func applyStateDiff(stateAccess StateAccess, diff *state.StateDiff) {
	for addr, pre := range diff.Pre {
		post, ok := diff.Post[addr]
		if !ok {
			stateAccess.DeleteAccount(addr)
			continue
		}
		for slot := range pre.Storage {
			if _, written := post.Storage[slot]; !written {
				stateAccess.SetState(addr, slot, common.Hash{})
			}
		}
	}

	for addr, post := range diff.Post {
		if _, existed := diff.Pre[addr]; !existed && post.Code != nil {
			stateAccess.CreateAccount(addr)
		}
		if post.Balance != nil {
			balance, _ := uint256.FromBig(post.Balance.ToInt())
			stateAccess.SetBalance(addr, balance)
		}
		if post.Nonce != nil {
			stateAccess.SetNonce(addr, *post.Nonce)
		}
		if post.Code != nil {
			stateAccess.SetCode(addr, *post.Code)
		}
		for slot, value := range post.Storage {
			stateAccess.SetState(addr, slot, value)
		}
	}
}

// replayTransactions re-executes the transactions of block preceding index on fork, which must not be registered yet.
// Replay writes bypass the journal and the persistent account set, and persistent accounts are scrubbed from the
// resulting layer afterwards.
func (r *Registry) replayTransactions(fork *Fork, block *state.Block, index uint64) error {
	view := &stateView{layer: fork.layer, backend: fork.backend}
	for _, txHash := range block.Transactions[:index] {
		tx, err := fork.gateway.TransactionByHash(txHash)
		if err != nil {
			return err
		}
		r.logger.Trace("Replaying transaction ", txHash.Hex(), " of block ", block.Number)
		if err := r.executor.ExecuteTransaction(fork, view, tx); err != nil {
			return wrapReplayError(err, txHash)
		}
	}
	r.persistent.scrub(fork.layer)
	return nil
}

// Transact fetches a historical transaction from the endpoint of the fork with the given id, or of the active fork
// if id is nil, and executes it on that fork. Its writes are journaled and persistent accounts are written through.
func (r *Registry) Transact(txHash common.Hash, id *ForkId) error {
	fork, err := r.targetFork(id)
	if err != nil {
		return err
	}

	tx, err := fork.gateway.TransactionByHash(txHash)
	if err != nil {
		return err
	}
	r.logger.Debug("Executing transaction ", txHash.Hex(), " on fork ", fork.id)
	if err := r.executor.ExecuteTransaction(fork, r.viewOf(fork), tx); err != nil {
		return wrapReplayError(err, txHash)
	}
	return nil
}

// wrapReplayError turns an execution failure into a RemoteRpcError. Errors that already carry a code keep it.
func wrapReplayError(err error, txHash common.Hash) error {
	if types.CodeOf(err) != 0 {
		return err
	}
	return types.NewForkError(types.ErrCodeRemoteRpc, errors.Wrapf(err, "failed to execute transaction %s", txHash.Hex()))
}
