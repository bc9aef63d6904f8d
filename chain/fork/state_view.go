package fork

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/state"
	"github.com/holiman/uint256"
)

/*
stateView resolves reads and routes writes for one fork:
 1. persistent accounts resolve through their shared AccountState,
 2. other accounts resolve through the fork's override layer,
 3. fields not known to either are fetched from the fork's remote anchor and materialized into the account.

Fetching only ever fills unknown fields and never creates journal entries. A view without a persistent set or journal
is used while replaying history onto a fork that is not registered yet.
*/
type stateView struct {
	layer      *overrideLayer
	backend    state.StateBackend
	persistent *PersistentAccountSet
	journal    *journal
}

// account returns the AccountState addr resolves through.
func (v *stateView) account(addr common.Address) *AccountState {
	if v.persistent != nil {
		if account, ok := v.persistent.accounts[addr]; ok {
			return account
		}
	}
	return v.layer.get(addr)
}

// materialize fetches the unknown balance, nonce and code of account.
func (v *stateView) materialize(addr common.Address, account *AccountState) error {
	if account.loaded() {
		return nil
	}
	balance, nonce, code, err := v.backend.GetStateObject(addr)
	if err != nil {
		return err
	}
	account.fill(balance, nonce, code)
	return nil
}

func (v *stateView) record(entry journalEntry) {
	if v.journal != nil {
		v.journal.append(entry)
	}
}

func (v *stateView) GetBalance(addr common.Address) (*uint256.Int, error) {
	account := v.account(addr)
	if !account.balanceLoaded {
		if err := v.materialize(addr, account); err != nil {
			return nil, err
		}
	}
	return account.balance.Clone(), nil
}

func (v *stateView) GetNonce(addr common.Address) (uint64, error) {
	account := v.account(addr)
	if !account.nonceLoaded {
		if err := v.materialize(addr, account); err != nil {
			return 0, err
		}
	}
	return account.nonce, nil
}

func (v *stateView) GetCode(addr common.Address) ([]byte, error) {
	account := v.account(addr)
	if !account.codeLoaded {
		if err := v.materialize(addr, account); err != nil {
			return nil, err
		}
	}
	return common.CopyBytes(account.code), nil
}

func (v *stateView) GetState(addr common.Address, slot common.Hash) (common.Hash, error) {
	account := v.account(addr)
	if value, ok := account.storage[slot]; ok {
		return value, nil
	}
	if account.localOnly {
		return common.Hash{}, nil
	}

	value, err := v.backend.GetStorageAt(addr, slot)
	if err != nil {
		return common.Hash{}, err
	}
	account.storage[slot] = value
	return value, nil
}

func (v *stateView) SetBalance(addr common.Address, balance *uint256.Int) {
	account := v.account(addr)
	v.record(balanceChange{account: account, prev: account.balance, prevLoaded: account.balanceLoaded})
	account.balance = new(uint256.Int)
	if balance != nil {
		account.balance.Set(balance)
	}
	account.balanceLoaded = true
}

func (v *stateView) SetNonce(addr common.Address, nonce uint64) {
	account := v.account(addr)
	v.record(nonceChange{account: account, prev: account.nonce, prevLoaded: account.nonceLoaded})
	account.nonce = nonce
	account.nonceLoaded = true
}

func (v *stateView) SetCode(addr common.Address, code []byte) {
	account := v.account(addr)
	v.record(codeChange{account: account, prev: account.code, prevLoaded: account.codeLoaded})
	account.code = common.CopyBytes(code)
	account.codeLoaded = true
}

func (v *stateView) SetState(addr common.Address, slot common.Hash, value common.Hash) {
	account := v.account(addr)
	prev, existed := account.storage[slot]
	v.record(storageChange{account: account, slot: slot, prev: prev, prevExisted: existed})
	account.storage[slot] = value
}

// CreateAccount resets the nonce, code and storage of addr, as when a contract is deployed to it. The balance is kept.
// Storage slots never written afterwards read as zero instead of being fetched.
func (v *stateView) CreateAccount(addr common.Address) {
	account := v.account(addr)
	v.record(resetAccountChange{account: account, prev: account.copy()})

	account.nonce, account.nonceLoaded = 0, true
	account.code, account.codeLoaded = nil, true
	account.storage = make(map[common.Hash]common.Hash)
	account.localOnly = true
}

// DeleteAccount clears every field of addr, as when a contract self-destructs.
func (v *stateView) DeleteAccount(addr common.Address) {
	account := v.account(addr)
	v.record(resetAccountChange{account: account, prev: account.copy()})

	*account = AccountState{
		balance:       new(uint256.Int),
		balanceLoaded: true,
		nonceLoaded:   true,
		codeLoaded:    true,
		storage:       make(map[common.Hash]common.Hash),
		localOnly:     true,
	}
}
