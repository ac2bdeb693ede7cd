package collar

import (
	"errors"
	"math/big"

	"collarcore/core/types"
)

var (
	errNilState            = errors.New("collar engine: state not configured")
	errInvalidAmount       = errors.New("collar engine: amount must be positive")
	errInsufficientBalance = errors.New("collar engine: insufficient balance")
)

// engineState is the persistence seam shared by all collar engines. The
// bbolt-backed store and the in-memory test state both implement it.
type engineState interface {
	GetAccount(addr Address) (*types.Account, error)
	PutAccount(addr Address, acc *types.Account) error

	OfferPut(*LiquidityOffer) error
	OfferGet(id uint64) (*LiquidityOffer, bool)
	OfferNextID() (uint64, error)

	ProviderPut(*ProviderPosition) error
	ProviderGet(id uint64) (*ProviderPosition, bool)
	ProviderNextID() (uint64, error)

	TakerPut(*TakerPosition) error
	TakerGet(id uint64) (*TakerPosition, bool)
	TakerNextID() (uint64, error)

	RollPut(*RollOffer) error
	RollGet(id uint64) (*RollOffer, bool)
	RollNextID() (uint64, error)
}

// IsNotFound reports whether err indicates a missing offer, position, or roll.
func IsNotFound(err error) bool {
	return errors.Is(err, errOfferNotFound) ||
		errors.Is(err, errProviderNotFound) ||
		errors.Is(err, errTakerNotFound) ||
		errors.Is(err, errRollNotFound)
}

// AccountBalance reports the cash balance bound to an address, zero for
// accounts that have never been touched.
func AccountBalance(state StateReader, addr Address) (*big.Int, error) {
	acc, err := state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(acc.Balance), nil
}

// StateReader is the read-only slice of the state used by API views.
type StateReader interface {
	GetAccount(addr Address) (*types.Account, error)
}

func loadAccount(state engineState, addr Address) (*types.Account, error) {
	if state == nil {
		return nil, errNilState
	}
	acc, err := state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = types.NewAccount()
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

// moveCash transfers amount between two accounts, rejecting overdrafts. Both
// accounts are loaded, adjusted, and persisted within the caller's atomic
// step.
func moveCash(state engineState, from, to Address, amount *big.Int) error {
	if state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromAcc, err := loadAccount(state, from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	toAcc, err := loadAccount(state, to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return state.PutAccount(to, toAcc)
}

func accountBalance(state engineState, addr Address) (*big.Int, error) {
	acc, err := loadAccount(state, addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}
