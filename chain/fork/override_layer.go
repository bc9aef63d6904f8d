package fork

import "github.com/crytic/medusa-geth/common"

// overrideLayer holds the local state of non-persistent accounts for one fork, layered over the fork's remote anchor.
// Entries are created on first access, so a present entry may still be unmaterialized.
type overrideLayer struct {
	accounts map[common.Address]*AccountState
}

func newOverrideLayer() *overrideLayer {
	return &overrideLayer{
		accounts: make(map[common.Address]*AccountState),
	}
}

// get returns the account at addr, creating an unmaterialized one if absent.
func (l *overrideLayer) get(addr common.Address) *AccountState {
	account, ok := l.accounts[addr]
	if !ok {
		account = newAccountState()
		l.accounts[addr] = account
	}
	return account
}

// take removes the account at addr from the layer and returns it, or a new unmaterialized account if absent.
func (l *overrideLayer) take(addr common.Address) *AccountState {
	account, ok := l.accounts[addr]
	if !ok {
		return newAccountState()
	}
	delete(l.accounts, addr)
	return account
}

// put stores account at addr, replacing any existing entry.
func (l *overrideLayer) put(addr common.Address, account *AccountState) {
	l.accounts[addr] = account
}

// remove drops the entry at addr, if any.
func (l *overrideLayer) remove(addr common.Address) {
	delete(l.accounts, addr)
}

// contains returns whether the layer holds an entry for addr.
func (l *overrideLayer) contains(addr common.Address) bool {
	_, ok := l.accounts[addr]
	return ok
}
