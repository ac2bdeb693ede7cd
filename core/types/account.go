package types

import "math/big"

// Account tracks the cash balance held by an address. The collar engines run
// against a single settlement asset, so a single balance field is sufficient;
// module vaults are ordinary accounts addressed like any participant.
type Account struct {
	Balance *big.Int `json:"balance"`
}

// NewAccount returns an account with a zeroed, non-nil balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Clone returns a deep copy of the account so callers can mutate the copy
// without affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
