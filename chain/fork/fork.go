package fork

import (
	"fmt"
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/state"
)

// ForkId identifies a fork for the lifetime of a session. Ids are assigned in increasing order starting at zero and are
// never reused, not even after a fork is re-anchored.
type ForkId uint64

// AnchorKind describes what a fork's state is rooted at.
type AnchorKind int

const (
	// AnchorLatest roots the fork at the endpoint's chain tip, resolved when the fork is created or rolled.
	AnchorLatest AnchorKind = iota
	// AnchorBlock roots the fork at the end of a given block.
	AnchorBlock
	// AnchorTransaction roots the fork immediately before a given transaction executes.
	AnchorTransaction
)

// Anchor describes the point of a remote chain a fork's state is rooted at. Once resolved, Block holds the height the
// fork reads from: the chosen block for block and latest anchors, the block containing the transaction for transaction
// anchors (whose remote reads happen one block earlier).
type Anchor struct {
	Kind AnchorKind

	// Block is the requested height of a block anchor, or the resolved height of any anchor.
	Block uint64

	// TxHash and TxIndex identify the transaction of a transaction anchor.
	TxHash  common.Hash
	TxIndex uint64
}

// LatestAnchor returns an anchor at the chain tip.
func LatestAnchor() Anchor {
	return Anchor{Kind: AnchorLatest}
}

// BlockAnchor returns an anchor at the given block height.
func BlockAnchor(block uint64) Anchor {
	return Anchor{Kind: AnchorBlock, Block: block}
}

// TransactionAnchor returns an anchor immediately before the given transaction.
func TransactionAnchor(txHash common.Hash) Anchor {
	return Anchor{Kind: AnchorTransaction, TxHash: txHash}
}

// String returns a human-readable description of the anchor.
func (a Anchor) String() string {
	switch a.Kind {
	case AnchorBlock:
		return fmt.Sprintf("block %d", a.Block)
	case AnchorTransaction:
		return fmt.Sprintf("transaction %s", a.TxHash.Hex())
	default:
		return "latest"
	}
}

// Environment holds the block header fields a fork mirrors into the shared execution environment.
type Environment struct {
	ChainId     uint64
	BlockNumber uint64
	Timestamp   uint64
	BaseFee     *big.Int
	GasLimit    uint64
	Coinbase    common.Address
	Difficulty  *big.Int
	PrevRandao  common.Hash
	BlockHash   common.Hash
}

// Copy returns a deep copy of the environment.
func (e Environment) Copy() Environment {
	copied := e
	if e.BaseFee != nil {
		copied.BaseFee = new(big.Int).Set(e.BaseFee)
	}
	if e.Difficulty != nil {
		copied.Difficulty = new(big.Int).Set(e.Difficulty)
	}
	return copied
}

// newEnvironment builds the environment of a fork executing on top of block.
func newEnvironment(chainId uint64, block *state.Block) Environment {
	return Environment{
		ChainId:     chainId,
		BlockNumber: block.Number,
		Timestamp:   block.Timestamp,
		BaseFee:     block.BaseFee,
		GasLimit:    block.GasLimit,
		Coinbase:    block.Coinbase,
		Difficulty:  block.Difficulty,
		PrevRandao:  block.MixDigest,
		BlockHash:   block.Hash,
	}.Copy()
}

// Fork is one logical view of chain state: a remote anchor, the execution environment derived from it, and the local
// writes layered on top. Forks are owned by a Registry.
type Fork struct {
	id       ForkId
	endpoint string

	anchor      Anchor
	environment Environment

	// layer holds the fork-local overrides of non-persistent accounts.
	layer *overrideLayer

	gateway *state.Gateway
	backend state.StateBackend
}

// Id returns the fork's id.
func (f *Fork) Id() ForkId {
	return f.id
}

// Endpoint returns the RPC URL the fork reads remote state from.
func (f *Fork) Endpoint() string {
	return f.endpoint
}

// CachingEnabled returns whether remote state read by the fork is persisted to disk.
func (f *Fork) CachingEnabled() bool {
	return f.gateway.CachingEnabled()
}

// Anchor returns the resolved anchor of the fork.
func (f *Fork) Anchor() Anchor {
	return f.anchor
}

// Environment returns a copy of the fork's execution environment.
func (f *Fork) Environment() Environment {
	return f.environment.Copy()
}

// Gateway returns the remote data gateway of the fork's endpoint.
func (f *Fork) Gateway() *state.Gateway {
	return f.gateway
}

// remoteHeight returns the block height remote reads are served at.
func (f *Fork) remoteHeight() uint64 {
	if f.anchor.Kind == AnchorTransaction {
		return f.anchor.Block - 1
	}
	return f.anchor.Block
}

// reanchor replaces the fork's anchor and state with those of other, keeping the fork's id.
func (f *Fork) reanchor(other *Fork) {
	f.endpoint = other.endpoint
	f.anchor = other.anchor
	f.environment = other.environment
	f.layer = other.layer
	f.gateway = other.gateway
	f.backend = other.backend
}
