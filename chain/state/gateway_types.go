package state

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/core/types"
)

// Block is the subset of a remote block header needed to build a fork's execution environment, plus the hashes of the
// transactions it contains in execution order.
type Block struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    uint64
	BaseFee      *big.Int
	GasLimit     uint64
	Coinbase     common.Address
	Difficulty   *big.Int
	MixDigest    common.Hash
	Transactions []common.Hash
}

// rpcBlock is the wire format of eth_getBlockByNumber without full transactions.
type rpcBlock struct {
	Number       *hexutil.Uint64 `json:"number"`
	Hash         *common.Hash    `json:"hash"`
	ParentHash   common.Hash     `json:"parentHash"`
	Timestamp    hexutil.Uint64  `json:"timestamp"`
	BaseFee      *hexutil.Big    `json:"baseFeePerGas"`
	GasLimit     hexutil.Uint64  `json:"gasLimit"`
	Miner        common.Address  `json:"miner"`
	Difficulty   *hexutil.Big    `json:"difficulty"`
	MixHash      common.Hash     `json:"mixHash"`
	Transactions []common.Hash   `json:"transactions"`
}

func (b *rpcBlock) toBlock() *Block {
	block := &Block{
		Number:       uint64(*b.Number),
		Hash:         *b.Hash,
		ParentHash:   b.ParentHash,
		Timestamp:    uint64(b.Timestamp),
		GasLimit:     uint64(b.GasLimit),
		Coinbase:     b.Miner,
		MixDigest:    b.MixHash,
		Difficulty:   new(big.Int),
		Transactions: b.Transactions,
	}
	if b.BaseFee != nil {
		block.BaseFee = new(big.Int).Set(b.BaseFee.ToInt())
	}
	if b.Difficulty != nil {
		block.Difficulty.Set(b.Difficulty.ToInt())
	}
	return block
}

// Transaction is a mined transaction along with its position on chain and its sender.
type Transaction struct {
	Tx          *types.Transaction
	Hash        common.Hash
	From        common.Address
	BlockNumber uint64
	BlockHash   common.Hash
	Index       uint64
}

// rpcTransactionInfo holds the fields eth_getTransactionByHash returns on top of the transaction itself.
type rpcTransactionInfo struct {
	BlockNumber      *hexutil.Uint64 `json:"blockNumber"`
	BlockHash        *common.Hash    `json:"blockHash"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	From             common.Address  `json:"from"`
}

// AccountDiff describes the fields of an account touched by a transaction. Nil fields were not reported.
type AccountDiff struct {
	Balance *hexutil.Big                `json:"balance"`
	Nonce   *uint64                     `json:"nonce"`
	Code    *hexutil.Bytes              `json:"code"`
	Storage map[common.Hash]common.Hash `json:"storage"`
}

// StateDiff is the prestateTracer diff of a transaction. Pre holds the touched accounts before execution, Post the
// modified fields after execution. Accounts present in Pre but absent from Post were deleted, slots present in a Pre
// account but absent from its Post account were cleared.
type StateDiff struct {
	Pre  map[common.Address]AccountDiff `json:"pre"`
	Post map[common.Address]AccountDiff `json:"post"`
}
