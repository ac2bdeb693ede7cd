package collar

import (
	"errors"
	"math/big"

	"collarcore/core/events"
	nativecommon "collarcore/native/common"
)

var (
	errProviderNotFound     = errors.New("provider engine: position not found")
	errProviderBurned       = errors.New("provider engine: position handle burned")
	errProviderNotOwner     = errors.New("provider engine: caller does not hold the position")
	errProviderNotExpired   = errors.New("provider engine: position not yet past expiration")
	errProviderSettled      = errors.New("provider engine: position already settled")
	errProviderNotSettled   = errors.New("provider engine: position not settled")
	errProviderMinLocked    = errors.New("provider engine: locked amount below offer minimum")
	errProviderLossExceeds  = errors.New("provider engine: loss exceeds provider principal")
	errProviderNotConsented = errors.New("provider engine: taker store does not hold the position handle")
)

// ProviderEngine mints and settles the liquidity-side half of paired
// positions. Its settle, mint, and cancel entry points are unexported:
// they are reachable only through the TakerEngine holding a typed reference
// to this instance, which is the trust boundary between the two stores.
type ProviderEngine struct {
	state        engineState
	offers       *OfferEngine
	vault        Address
	feeRecipient Address
	feeAPRBps    uint64
	emitter      events.Emitter
	pauses       nativecommon.PauseView
}

// NewProviderEngine constructs a provider store bound to its vault account
// and the offer registry it mints from.
func NewProviderEngine(offers *OfferEngine, vault Address) *ProviderEngine {
	return &ProviderEngine{
		offers:  offers,
		vault:   vault,
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *ProviderEngine) SetState(state engineState) { e.state = state }

// SetProtocolFee configures the annualised mint fee rate and its recipient.
// When the recipient is unset the fee is forced to zero: transferring a
// non-zero amount to a null recipient is never attempted.
func (e *ProviderEngine) SetProtocolFee(aprBps uint64, recipient Address) {
	if e == nil {
		return
	}
	e.feeAPRBps = aprBps
	e.feeRecipient = recipient
}

// SetEmitter configures the event emitter used by the engine.
func (e *ProviderEngine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *ProviderEngine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *ProviderEngine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Position returns a copy of the stored provider position.
func (e *ProviderEngine) Position(id uint64) (*ProviderPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadPosition(id)
}

func (e *ProviderEngine) loadPosition(id uint64) (*ProviderPosition, error) {
	pos, ok := e.state.ProviderGet(id)
	if !ok {
		return nil, errProviderNotFound
	}
	return pos.Clone(), nil
}

// TransferPosition moves the ownership handle to a new holder. The paired
// taker position is unaffected; the two handles are independent.
func (e *ProviderEngine) TransferPosition(from, to Address, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return err
	}
	if pos.Burned {
		return errProviderBurned
	}
	if pos.Owner != from {
		return errProviderNotOwner
	}
	pos.Owner = to
	return e.state.ProviderPut(pos)
}

// validateMint runs every rejectable check a mint would hit, without
// touching state. The taker store consults it before pulling the caller's
// cash so an ordinary rejection leaves every balance where it was. Returns
// the protocol fee the mint would charge.
func (e *ProviderEngine) validateMint(offer *LiquidityOffer, providerLocked *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, positionsModuleName); err != nil {
		return nil, err
	}
	if providerLocked == nil || providerLocked.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if offer.MinLocked.Sign() > 0 && providerLocked.Cmp(offer.MinLocked) < 0 {
		return nil, errProviderMinLocked
	}
	if err := e.offers.checkPolicy(offer.PutStrikeBps, offer.CallStrikeBps, offer.DurationSecs); err != nil {
		return nil, err
	}
	fee := big.NewInt(0)
	if e.feeRecipient != (Address{}) {
		fee = MintFee(providerLocked, offer.DurationSecs, e.feeAPRBps)
	}
	if offer.Available.Cmp(new(big.Int).Add(providerLocked, fee)) < 0 {
		return nil, errOfferCapacity
	}
	return fee, nil
}

// mintFromOffer draws providerLocked plus the protocol fee out of the offer
// and records the position, minting the handle to the offer's poster. Only
// the taker store calls this, inside OpenPairedPosition.
func (e *ProviderEngine) mintFromOffer(offerID uint64, providerLocked *big.Int, takerID uint64, now int64) (*ProviderPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, err := e.offers.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	fee, err := e.validateMint(offer, providerLocked)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(providerLocked, fee)
	if err := e.offers.consumeCapacity(offer, total); err != nil {
		return nil, err
	}
	if err := moveCash(e.state, e.offers.vault, e.vault, providerLocked); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := moveCash(e.state, e.offers.vault, e.feeRecipient, fee); err != nil {
			return nil, err
		}
	}
	id, err := e.state.ProviderNextID()
	if err != nil {
		return nil, err
	}
	pos := &ProviderPosition{
		ID:             id,
		Owner:          offer.Provider,
		OfferID:        offer.ID,
		TakerID:        takerID,
		Expiration:     now + offer.DurationSecs,
		ProviderLocked: new(big.Int).Set(providerLocked),
		Withdrawable:   big.NewInt(0),
	}
	if err := e.state.ProviderPut(pos); err != nil {
		return nil, err
	}
	e.emit(NewProviderMintedEvent(pos, fee))
	return pos.Clone(), nil
}

// settlePosition applies the signed settlement transfer. The settled flag
// flips before any cash moves so a reentrant call observes terminal state.
// takerVault is the account the delta is pulled from or paid to.
func (e *ProviderEngine) settlePosition(id uint64, delta *big.Int, takerVault Address, now int64) (*ProviderPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, positionsModuleName); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	if pos.Burned {
		return nil, errProviderBurned
	}
	if pos.Settled {
		return nil, errProviderSettled
	}
	if now < pos.Expiration {
		return nil, errProviderNotExpired
	}
	if delta == nil {
		delta = big.NewInt(0)
	}
	withdrawable := new(big.Int).Add(pos.ProviderLocked, delta)
	if withdrawable.Sign() < 0 {
		return nil, errProviderLossExceeds
	}
	pos.Settled = true
	pos.Withdrawable = withdrawable
	if err := e.state.ProviderPut(pos); err != nil {
		return nil, err
	}
	if delta.Sign() > 0 {
		if err := moveCash(e.state, takerVault, e.vault, delta); err != nil {
			return nil, err
		}
	} else if delta.Sign() < 0 {
		if err := moveCash(e.state, e.vault, takerVault, new(big.Int).Neg(delta)); err != nil {
			return nil, err
		}
	}
	e.emit(NewProviderSettledEvent(pos, delta))
	return pos.Clone(), nil
}

// cancelAndWithdraw unwinds an unexpired position with bilateral consent:
// the taker store must hold the provider handle, which only happens after
// both owners transferred their handles in. Pays back exactly the locked
// principal regardless of price and burns the handle.
func (e *ProviderEngine) cancelAndWithdraw(id uint64, takerVault Address, payTo Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, positionsModuleName); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	if pos.Burned {
		return nil, errProviderBurned
	}
	if pos.Settled {
		return nil, errProviderSettled
	}
	if pos.Owner != takerVault {
		return nil, errProviderNotConsented
	}
	pos.Burned = true
	pos.Withdrawable = big.NewInt(0)
	if err := e.state.ProviderPut(pos); err != nil {
		return nil, err
	}
	if err := moveCash(e.state, e.vault, payTo, pos.ProviderLocked); err != nil {
		return nil, err
	}
	e.emit(NewProviderCancelledEvent(pos))
	return new(big.Int).Set(pos.ProviderLocked), nil
}

// WithdrawFromSettled pays out the settled amount to the current handle
// owner and burns the handle. Reachable exactly once per position.
func (e *ProviderEngine) WithdrawFromSettled(caller Address, id uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, positionsModuleName); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	if pos.Burned {
		return nil, errProviderBurned
	}
	if !pos.Settled {
		return nil, errProviderNotSettled
	}
	if pos.Owner != caller {
		return nil, errProviderNotOwner
	}
	amount := new(big.Int).Set(pos.Withdrawable)
	pos.Burned = true
	pos.Withdrawable = big.NewInt(0)
	if err := e.state.ProviderPut(pos); err != nil {
		return nil, err
	}
	if err := moveCash(e.state, e.vault, caller, amount); err != nil {
		return nil, err
	}
	e.emit(NewProviderWithdrawnEvent(pos, amount))
	return amount, nil
}

// offerFor resolves the originating offer of a position; strike percentages
// and duration are read through here rather than duplicated on the records.
func (e *ProviderEngine) offerFor(pos *ProviderPosition) (*LiquidityOffer, error) {
	if e == nil || e.offers == nil {
		return nil, errNilState
	}
	return e.offers.loadOffer(pos.OfferID)
}
