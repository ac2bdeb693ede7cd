package collar

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"collarcore/core/events"
	nativecommon "collarcore/native/common"
)

var (
	errTakerNotFound       = errors.New("taker engine: position not found")
	errTakerBurned         = errors.New("taker engine: position handle burned")
	errTakerNotOwner       = errors.New("taker engine: caller does not hold the position")
	errTakerNotExpired     = errors.New("taker engine: position not yet past expiration")
	errTakerGraceNotPassed = errors.New("taker engine: oracle grace delay has not elapsed")
	errTakerSettled        = errors.New("taker engine: position already settled")
	errTakerNotSettled     = errors.New("taker engine: position not settled")
	errTakerNoProvider     = errors.New("taker engine: provider store not configured")
	errTakerOracle         = errors.New("taker engine: price oracle not configured")
	errTakerDegenerate     = errors.New("taker engine: derived strike equals start price")
	errTakerConsent        = errors.New("taker engine: caller must hold both position handles")
	errUnexpectedBalance   = errors.New("taker engine: unexpected balance delta after nested settlement")
)

// defaultGraceDelay is how long past expiration a pair must wait before the
// no-price fallback becomes available, guarding against transient oracle
// outages being used to dodge settlement.
const defaultGraceDelay int64 = 7 * 24 * 3600

// TakerEngine mints the principal-side half of paired positions and drives
// settlement of both sides together. It is the only component allowed to
// reach the provider store's restricted entry points.
type TakerEngine struct {
	state      engineState
	provider   *ProviderEngine
	oracle     PriceSource
	vault      Address
	graceDelay int64
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() int64
}

// NewTakerEngine constructs a taker store bound to its vault account and the
// provider store it settles against.
func NewTakerEngine(provider *ProviderEngine, vault Address) *TakerEngine {
	return &TakerEngine{
		provider:   provider,
		vault:      vault,
		graceDelay: defaultGraceDelay,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *TakerEngine) SetState(state engineState) { e.state = state }

// SetOracle wires the price source consulted at open and settlement.
func (e *TakerEngine) SetOracle(oracle PriceSource) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetGraceDelay overrides the delay gating SettleAsCancelled.
func (e *TakerEngine) SetGraceDelay(secs int64) {
	if e == nil {
		return
	}
	if secs <= 0 {
		secs = defaultGraceDelay
	}
	e.graceDelay = secs
}

// SetEmitter configures the event emitter used by the engine.
func (e *TakerEngine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *TakerEngine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
	if e.provider != nil {
		e.provider.SetPauses(p)
	}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *TakerEngine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *TakerEngine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *TakerEngine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Position returns a copy of the stored taker position.
func (e *TakerEngine) Position(id uint64) (*TakerPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadPosition(id)
}

func (e *TakerEngine) loadPosition(id uint64) (*TakerPosition, error) {
	pos, ok := e.state.TakerGet(id)
	if !ok {
		return nil, errTakerNotFound
	}
	return pos.Clone(), nil
}

// PairTerms resolves the strike prices and expiration of a taker position
// from its paired provider record, never from duplicated fields.
func (e *TakerEngine) PairTerms(pos *TakerPosition) (*ProviderPosition, *LiquidityOffer, *big.Int, *big.Int, error) {
	if e == nil || e.provider == nil {
		return nil, nil, nil, nil, errTakerNoProvider
	}
	providerPos, err := e.provider.loadPosition(pos.ProviderID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	offer, err := e.provider.offerFor(providerPos)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	putPrice := StrikePrice(pos.StartPrice, offer.PutStrikeBps)
	callPrice := StrikePrice(pos.StartPrice, offer.CallStrikeBps)
	return providerPos, offer, putPrice, callPrice, nil
}

// TransferPosition moves the ownership handle to a new holder.
func (e *TakerEngine) TransferPosition(from, to Address, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return err
	}
	if pos.Burned {
		return errTakerBurned
	}
	if pos.Owner != from {
		return errTakerNotOwner
	}
	pos.Owner = to
	return e.state.TakerPut(pos)
}

// OpenPairedPosition pulls takerLocked from the caller, scales the provider
// principal to the strike ranges, and mints both halves of the pair against
// the offer.
func (e *TakerEngine) OpenPairedPosition(caller Address, takerLocked *big.Int, offerID uint64) (*TakerPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.provider == nil {
		return nil, errTakerNoProvider
	}
	if e.oracle == nil {
		return nil, errTakerOracle
	}
	if err := nativecommon.Guard(e.pauses, positionsModuleName); err != nil {
		return nil, err
	}
	if takerLocked == nil || takerLocked.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	offer, err := e.provider.offers.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	providerLocked := ProviderLockedFor(takerLocked, offer.PutStrikeBps, offer.CallStrikeBps)
	if providerLocked.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	startPrice, err := e.oracle.CurrentPrice()
	if err != nil {
		return nil, fmt.Errorf("taker engine: oracle price: %w", err)
	}
	if startPrice == nil || startPrice.Sign() <= 0 {
		return nil, fmt.Errorf("taker engine: oracle returned non-positive price")
	}
	putPrice := StrikePrice(startPrice, offer.PutStrikeBps)
	callPrice := StrikePrice(startPrice, offer.CallStrikeBps)
	if putPrice.Cmp(startPrice) == 0 || callPrice.Cmp(startPrice) == 0 {
		return nil, errTakerDegenerate
	}
	// Provider-side rejections (capacity, minLocked, policy) must fire
	// before the caller's cash moves, or a refused open strands the funds.
	if _, err := e.provider.validateMint(offer, providerLocked); err != nil {
		return nil, err
	}
	if err := moveCash(e.state, caller, e.vault, takerLocked); err != nil {
		return nil, err
	}
	id, err := e.state.TakerNextID()
	if err != nil {
		return nil, err
	}
	providerPos, err := e.provider.mintFromOffer(offerID, providerLocked, id, e.now())
	if err != nil {
		return nil, err
	}
	pos := &TakerPosition{
		ID:           id,
		Owner:        caller,
		ProviderID:   providerPos.ID,
		StartPrice:   new(big.Int).Set(startPrice),
		TakerLocked:  new(big.Int).Set(takerLocked),
		SettledPrice: big.NewInt(0),
		Withdrawable: big.NewInt(0),
	}
	if err := e.state.TakerPut(pos); err != nil {
		return nil, err
	}
	e.emit(NewPairOpenedEvent(pos, providerPos))
	return pos.Clone(), nil
}

// SettlePairedPosition settles both halves of an expired pair at the oracle
// price observed now. Callable by anyone: settlement is a public service,
// the payouts only ever reach the handle owners. The price is deliberately
// the call-time spot, not the price at the expiration instant.
func (e *TakerEngine) SettlePairedPosition(caller Address, id uint64) (*TakerPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.oracle == nil {
		return nil, errTakerOracle
	}
	endPrice, err := e.oracle.CurrentPrice()
	if err != nil {
		return nil, fmt.Errorf("taker engine: oracle price: %w", err)
	}
	if endPrice == nil || endPrice.Sign() <= 0 {
		return nil, fmt.Errorf("taker engine: oracle returned non-positive price")
	}
	return e.settle(id, endPrice, false)
}

// SettleAsCancelled is the no-price fallback: once the grace delay past
// expiration has elapsed it settles the pair with a zero transfer, returning
// each side its own principal. The settlement record carries the zero
// sentinel end price so the path stays distinguishable.
func (e *TakerEngine) SettleAsCancelled(caller Address, id uint64) (*TakerPosition, error) {
	return e.settle(id, big.NewInt(0), true)
}

func (e *TakerEngine) settle(id uint64, endPrice *big.Int, cancelled bool) (*TakerPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.provider == nil {
		return nil, errTakerNoProvider
	}
	if err := nativecommon.Guard(e.pauses, positionsModuleName); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	if pos.Burned {
		return nil, errTakerBurned
	}
	if pos.Settled {
		return nil, errTakerSettled
	}
	providerPos, _, putPrice, callPrice, err := e.PairTerms(pos)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if now < providerPos.Expiration {
		return nil, errTakerNotExpired
	}
	takerBalance := new(big.Int).Set(pos.TakerLocked)
	providerDelta := big.NewInt(0)
	if cancelled {
		if now < providerPos.Expiration+e.graceDelay {
			return nil, errTakerGraceNotPassed
		}
	} else {
		takerBalance, providerDelta = SettleAmounts(pos.StartPrice, putPrice, callPrice, pos.TakerLocked, providerPos.ProviderLocked, endPrice)
	}
	// Terminal flags flip before the nested provider call so a reentrant
	// settlement attempt observes the settled state.
	pos.Settled = true
	pos.SettledPrice = copyBig(endPrice)
	if cancelled {
		pos.SettledPrice = big.NewInt(0)
	}
	pos.Withdrawable = takerBalance
	if err := e.state.TakerPut(pos); err != nil {
		return nil, err
	}
	balanceBefore, err := accountBalance(e.state, e.vault)
	if err != nil {
		return nil, err
	}
	if _, err := e.provider.settlePosition(pos.ProviderID, providerDelta, e.vault, now); err != nil {
		return nil, err
	}
	balanceAfter, err := accountBalance(e.state, e.vault)
	if err != nil {
		return nil, err
	}
	// The vault must have moved by exactly the negated delta; anything else
	// means the provider store misbehaved and the operation is fatal.
	moved := new(big.Int).Sub(balanceAfter, balanceBefore)
	if moved.Cmp(new(big.Int).Neg(providerDelta)) != 0 {
		return nil, errUnexpectedBalance
	}
	e.emit(NewPairSettledEvent(pos, providerDelta))
	return pos.Clone(), nil
}

// CancelPairedPosition unwinds an unexpired pair with full bilateral
// consent: the caller must hold both handles. Both principals are paid back
// in a single transfer, ignoring any price movement.
func (e *TakerEngine) CancelPairedPosition(caller Address, id uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.provider == nil {
		return nil, errTakerNoProvider
	}
	if err := nativecommon.Guard(e.pauses, positionsModuleName); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(id)
	if err != nil {
		return nil, err
	}
	if pos.Burned {
		return nil, errTakerBurned
	}
	if pos.Settled {
		return nil, errTakerSettled
	}
	if pos.Owner != caller {
		return nil, errTakerNotOwner
	}
	providerPos, err := e.provider.loadPosition(pos.ProviderID)
	if err != nil {
		return nil, err
	}
	if providerPos.Owner != caller {
		return nil, errTakerConsent
	}
	// Pull the provider handle into this store; cancelAndWithdraw verifies
	// that custody as the consent proof.
	if err := e.provider.TransferPosition(caller, e.vault, providerPos.ID); err != nil {
		return nil, err
	}
	pos.Burned = true
	if err := e.state.TakerPut(pos); err != nil {
		return nil, err
	}
	balanceBefore, err := accountBalance(e.state, e.vault)
	if err != nil {
		return nil, err
	}
	recovered, err := e.provider.cancelAndWithdraw(providerPos.ID, e.vault, e.vault)
	if err != nil {
		return nil, err
	}
	balanceAfter, err := accountBalance(e.state, e.vault)
	if err != nil {
		return nil, err
	}
	moved := new(big.Int).Sub(balanceAfter, balanceBefore)
	if moved.Cmp(recovered) != 0 {
		return nil, errUnexpectedBalance
	}
	total := new(big.Int).Add(pos.TakerLocked, recovered)
	if err := moveCash(e.state, e.vault, caller, total); err != nil {
		return nil, err
	}
	e.emit(NewPairCancelledEvent(pos, total))
	return total, nil
}

// WithdrawFromSettled pays out the settled amount to the current handle
// owner and burns the handle. Reachable exactly once per position.
func (e *TakerEngine) WithdrawFromSettled(caller Address, id uint64) (*big.Int, error) {
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
		return nil, errTakerBurned
	}
	if !pos.Settled {
		return nil, errTakerNotSettled
	}
	if pos.Owner != caller {
		return nil, errTakerNotOwner
	}
	amount := new(big.Int).Set(pos.Withdrawable)
	pos.Burned = true
	pos.Withdrawable = big.NewInt(0)
	if err := e.state.TakerPut(pos); err != nil {
		return nil, err
	}
	if err := moveCash(e.state, e.vault, caller, amount); err != nil {
		return nil, err
	}
	e.emit(NewPairWithdrawnEvent(pos, amount))
	return amount, nil
}
