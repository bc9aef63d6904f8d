package fork

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

/*
AccountState is the partially materialized state of an account. Balance, nonce and code each carry a flag telling
whether the field holds a known value (written locally or fetched) or still has to be fetched from the remote anchor.
Storage only holds the slots that are known.
*/
type AccountState struct {
	balance       *uint256.Int
	balanceLoaded bool

	nonce       uint64
	nonceLoaded bool

	code       []byte
	codeLoaded bool

	storage map[common.Hash]common.Hash

	// localOnly is set for accounts created or deleted locally. Their unknown storage slots are zero rather than
	// remote.
	localOnly bool
}

func newAccountState() *AccountState {
	return &AccountState{
		storage: make(map[common.Hash]common.Hash),
	}
}

// loaded returns whether balance, nonce and code are all known.
func (a *AccountState) loaded() bool {
	return a.balanceLoaded && a.nonceLoaded && a.codeLoaded
}

// fill sets the fields that are not known yet from a remote fetch. Known fields are left untouched.
func (a *AccountState) fill(balance *uint256.Int, nonce uint64, code []byte) {
	if !a.balanceLoaded {
		a.balance = new(uint256.Int)
		if balance != nil {
			a.balance.Set(balance)
		}
		a.balanceLoaded = true
	}
	if !a.nonceLoaded {
		a.nonce = nonce
		a.nonceLoaded = true
	}
	if !a.codeLoaded {
		a.code = common.CopyBytes(code)
		a.codeLoaded = true
	}
}

// copy returns a deep copy of the account.
func (a *AccountState) copy() *AccountState {
	copied := &AccountState{
		balanceLoaded: a.balanceLoaded,
		nonce:         a.nonce,
		nonceLoaded:   a.nonceLoaded,
		code:          common.CopyBytes(a.code),
		codeLoaded:    a.codeLoaded,
		storage:       make(map[common.Hash]common.Hash, len(a.storage)),
		localOnly:     a.localOnly,
	}
	if a.balance != nil {
		copied.balance = a.balance.Clone()
	}
	for slot, value := range a.storage {
		copied.storage[slot] = value
	}
	return copied
}
