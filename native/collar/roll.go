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
	errRollNotFound      = errors.New("roll engine: roll offer not found")
	errRollInactive      = errors.New("roll engine: roll offer no longer active")
	errRollNotProvider   = errors.New("roll engine: caller does not hold the provider position")
	errRollNotTaker      = errors.New("roll engine: caller does not hold the taker position")
	errRollDeadline      = errors.New("roll engine: roll offer deadline elapsed")
	errRollPriceBand     = errors.New("roll engine: price outside acceptable band")
	errRollBadBand       = errors.New("roll engine: invalid price band")
	errRollMinTaker      = errors.New("roll engine: transfer to taker below minimum")
	errRollPairSettled   = errors.New("roll engine: paired position already settled")
	errRollMinProvider   = errors.New("roll engine: transfer to provider below minimum")
	errRollRecovered     = errors.New("roll engine: cancelled pair recovered unexpected amount")
	errRollConservation  = errors.New("roll engine: value created or destroyed during roll")
	errRollNilEngines    = errors.New("roll engine: taker store not configured")
	errRollOracleMissing = errors.New("roll engine: price oracle not configured")
)

// RollEngine atomically unwinds a paired position and reopens it at the
// current price and fresh terms, netting a price-sensitive fee between the
// parties. The engine's vault account is the transient custodian of both
// handles and all cash while a roll executes.
type RollEngine struct {
	state   engineState
	taker   *TakerEngine
	oracle  PriceSource
	vault   Address
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// RollPreview is the speculative result of PreviewTransferAmounts. ToTaker
// and ToProvider are signed: negative values are owed by that party.
type RollPreview struct {
	Price             *big.Int `json:"price"`
	Fee               *big.Int `json:"fee"`
	ToTaker           *big.Int `json:"toTaker"`
	ToProvider        *big.Int `json:"toProvider"`
	ProtocolFee       *big.Int `json:"protocolFee"`
	NewTakerLocked    *big.Int `json:"newTakerLocked"`
	NewProviderLocked *big.Int `json:"newProviderLocked"`
}

// RollResult reports an executed roll.
type RollResult struct {
	RollID        uint64   `json:"rollId"`
	NewTakerID    uint64   `json:"newTakerId"`
	NewProviderID uint64   `json:"newProviderId"`
	Price         *big.Int `json:"price"`
	Fee           *big.Int `json:"fee"`
	ToTaker       *big.Int `json:"toTaker"`
	ToProvider    *big.Int `json:"toProvider"`
}

// NewRollEngine constructs a roll engine bound to its custody vault and the
// taker store whose pairs it rolls.
func NewRollEngine(taker *TakerEngine, vault Address) *RollEngine {
	return &RollEngine{
		taker:   taker,
		vault:   vault,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *RollEngine) SetState(state engineState) { e.state = state }

// SetOracle wires the price source used for fee references and execution.
func (e *RollEngine) SetOracle(oracle PriceSource) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetEmitter configures the event emitter used by the engine.
func (e *RollEngine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *RollEngine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *RollEngine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *RollEngine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *RollEngine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Offer returns a copy of the stored roll offer.
func (e *RollEngine) Offer(id uint64) (*RollOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadOffer(id)
}

func (e *RollEngine) loadOffer(id uint64) (*RollOffer, error) {
	offer, ok := e.state.RollGet(id)
	if !ok {
		return nil, errRollNotFound
	}
	return offer.Clone(), nil
}

// CreateRollOffer records a provider's standing offer to roll the given
// pair, pulling the provider handle into custody and snapshotting the
// current oracle price as the fee reference.
func (e *RollEngine) CreateRollOffer(caller Address, takerID uint64, feeAmount *big.Int, feeDeltaFactorBps int64, minPrice, maxPrice, minToProvider *big.Int, deadline int64) (*RollOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.taker == nil || e.taker.provider == nil {
		return nil, errRollNilEngines
	}
	if e.oracle == nil {
		return nil, errRollOracleMissing
	}
	if err := nativecommon.Guard(e.pauses, rollsModuleName); err != nil {
		return nil, err
	}
	if deadline <= e.now() {
		return nil, errRollDeadline
	}
	if minPrice == nil || maxPrice == nil || minPrice.Sign() <= 0 || minPrice.Cmp(maxPrice) > 0 {
		return nil, errRollBadBand
	}
	pos, err := e.taker.loadPosition(takerID)
	if err != nil {
		return nil, err
	}
	if pos.Burned || pos.Settled {
		return nil, errTakerSettled
	}
	providerPos, err := e.taker.provider.loadPosition(pos.ProviderID)
	if err != nil {
		return nil, err
	}
	if providerPos.Owner != caller {
		return nil, errRollNotProvider
	}
	refPrice, err := e.oracle.CurrentPrice()
	if err != nil {
		return nil, fmt.Errorf("roll engine: oracle price: %w", err)
	}
	if refPrice == nil || refPrice.Sign() <= 0 {
		return nil, fmt.Errorf("roll engine: oracle returned non-positive price")
	}
	if err := e.taker.provider.TransferPosition(caller, e.vault, providerPos.ID); err != nil {
		return nil, err
	}
	id, err := e.state.RollNextID()
	if err != nil {
		return nil, err
	}
	offer := &RollOffer{
		ID:                id,
		TakerID:           takerID,
		Provider:          caller,
		FeeAmount:         copyBig(feeAmount),
		FeeDeltaFactorBps: feeDeltaFactorBps,
		ReferencePrice:    new(big.Int).Set(refPrice),
		MinPrice:          new(big.Int).Set(minPrice),
		MaxPrice:          new(big.Int).Set(maxPrice),
		MinToProvider:     copyBig(minToProvider),
		Deadline:          deadline,
		Active:            true,
	}
	if err := e.state.RollPut(offer); err != nil {
		return nil, err
	}
	e.emit(NewRollCreatedEvent(offer))
	return offer.Clone(), nil
}

// CancelRollOffer deactivates an unconsumed roll offer and returns the
// provider handle from custody.
func (e *RollEngine) CancelRollOffer(caller Address, rollID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.taker == nil || e.taker.provider == nil {
		return errRollNilEngines
	}
	if err := nativecommon.Guard(e.pauses, rollsModuleName); err != nil {
		return err
	}
	offer, err := e.loadOffer(rollID)
	if err != nil {
		return err
	}
	if !offer.Active {
		return errRollInactive
	}
	if offer.Provider != caller {
		return errRollNotProvider
	}
	offer.Active = false
	if err := e.state.RollPut(offer); err != nil {
		return err
	}
	pos, err := e.taker.loadPosition(offer.TakerID)
	if err != nil {
		return err
	}
	if err := e.taker.provider.TransferPosition(e.vault, caller, pos.ProviderID); err != nil {
		return err
	}
	e.emit(NewRollCancelledEvent(offer))
	return nil
}

// CalculateFee evaluates the roll fee at the given price:
// fee = base + |base| * factor * (price - ref) / ref / 100%. The linear
// adjustment is signed so a positive factor moves the fee in the provider's
// favour as price rises. Pure; callable speculatively.
func CalculateFee(offer *RollOffer, price *big.Int) *big.Int {
	if offer == nil || price == nil || offer.ReferencePrice == nil || offer.ReferencePrice.Sign() == 0 {
		return big.NewInt(0)
	}
	base := copyBig(offer.FeeAmount)
	adj := new(big.Int).Abs(offer.FeeAmount)
	adj.Mul(adj, big.NewInt(offer.FeeDeltaFactorBps))
	adj.Mul(adj, new(big.Int).Sub(price, offer.ReferencePrice))
	den := new(big.Int).Mul(offer.ReferencePrice, basisPoints)
	adj.Quo(adj, den)
	return base.Add(base, adj)
}

// PreviewTransferAmounts computes the three-way cash split a roll of the
// pair would produce at the given price and fee, without mutating state.
// The identity toTaker + toProvider + protocolFee ==
// recoveredFromOldPair - lockedInNewPair holds for all inputs.
func (e *RollEngine) PreviewTransferAmounts(takerID uint64, price, fee *big.Int) (*RollPreview, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.taker == nil || e.taker.provider == nil {
		return nil, errRollNilEngines
	}
	if price == nil || price.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	pos, err := e.taker.loadPosition(takerID)
	if err != nil {
		return nil, err
	}
	providerPos, offer, putPrice, callPrice, err := e.taker.PairTerms(pos)
	if err != nil {
		return nil, err
	}
	oldTakerSettled, delta := SettleAmounts(pos.StartPrice, putPrice, callPrice, pos.TakerLocked, providerPos.ProviderLocked, price)
	oldProviderSettled := new(big.Int).Add(providerPos.ProviderLocked, delta)

	// New principal scaled to keep the underlying exposure constant.
	newTakerLocked := new(big.Int).Mul(pos.TakerLocked, price)
	newTakerLocked.Quo(newTakerLocked, pos.StartPrice)
	newProviderLocked := ProviderLockedFor(newTakerLocked, offer.PutStrikeBps, offer.CallStrikeBps)

	protocolFee := big.NewInt(0)
	if e.taker.provider.feeRecipient != (Address{}) {
		protocolFee = MintFee(newProviderLocked, offer.DurationSecs, e.taker.provider.feeAPRBps)
	}
	if fee == nil {
		fee = big.NewInt(0)
	}
	toTaker := new(big.Int).Sub(oldTakerSettled, newTakerLocked)
	toTaker.Sub(toTaker, fee)
	toProvider := new(big.Int).Sub(oldProviderSettled, newProviderLocked)
	toProvider.Add(toProvider, fee)
	toProvider.Sub(toProvider, protocolFee)
	return &RollPreview{
		Price:             new(big.Int).Set(price),
		Fee:               new(big.Int).Set(fee),
		ToTaker:           toTaker,
		ToProvider:        toProvider,
		ProtocolFee:       protocolFee,
		NewTakerLocked:    newTakerLocked,
		NewProviderLocked: newProviderLocked,
	}, nil
}

// ExecuteRoll consumes an active roll offer: the old pair is cancelled, the
// recovered principal re-locked at the current price, owed cash netted
// three ways, and the fresh handles delivered to their owners. The offer
// flips inactive before any cash or handle moves, and a vault balance check
// brackets the whole sequence.
func (e *RollEngine) ExecuteRoll(caller Address, rollID uint64, minToTaker *big.Int) (*RollResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.taker == nil || e.taker.provider == nil {
		return nil, errRollNilEngines
	}
	if e.oracle == nil {
		return nil, errRollOracleMissing
	}
	if err := nativecommon.Guard(e.pauses, rollsModuleName); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer(rollID)
	if err != nil {
		return nil, err
	}
	if !offer.Active {
		return nil, errRollInactive
	}
	if e.now() > offer.Deadline {
		return nil, errRollDeadline
	}
	pos, err := e.taker.loadPosition(offer.TakerID)
	if err != nil {
		return nil, err
	}
	// Settlement is public, so the pair can be settled out from under a
	// still-active roll offer. A settled pair cannot be rolled.
	if pos.Settled || pos.Burned {
		return nil, errRollPairSettled
	}
	if pos.Owner != caller {
		return nil, errRollNotTaker
	}
	price, err := e.oracle.CurrentPrice()
	if err != nil {
		return nil, fmt.Errorf("roll engine: oracle price: %w", err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("roll engine: oracle returned non-positive price")
	}
	if price.Cmp(offer.MinPrice) < 0 || price.Cmp(offer.MaxPrice) > 0 {
		return nil, errRollPriceBand
	}

	fee := CalculateFee(offer, price)
	preview, err := e.PreviewTransferAmounts(offer.TakerID, price, fee)
	if err != nil {
		return nil, err
	}
	if minToTaker != nil && preview.ToTaker.Cmp(minToTaker) < 0 {
		return nil, errRollMinTaker
	}
	if offer.MinToProvider != nil && preview.ToProvider.Cmp(offer.MinToProvider) < 0 {
		return nil, errRollMinProvider
	}

	// A party that cannot cover its negative leg is an ordinary rejection,
	// so both legs are checked before anything mutates. moveCash would catch
	// the shortfall anyway, but only after the old pair was destroyed.
	owedByCaller := big.NewInt(0)
	owedByProvider := big.NewInt(0)
	if preview.ToTaker.Sign() < 0 {
		owedByCaller.Neg(preview.ToTaker)
	}
	if preview.ToProvider.Sign() < 0 {
		owedByProvider.Neg(preview.ToProvider)
	}
	if caller == offer.Provider {
		owedByCaller.Add(owedByCaller, owedByProvider)
		owedByProvider.SetInt64(0)
	}
	for _, leg := range []struct {
		account Address
		owed    *big.Int
	}{{caller, owedByCaller}, {offer.Provider, owedByProvider}} {
		if leg.owed.Sign() == 0 {
			continue
		}
		balance, err := accountBalance(e.state, leg.account)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(leg.owed) < 0 {
			return nil, errInsufficientBalance
		}
	}

	// All pure checks passed. The offer flips inactive before anything moves
	// so a reentrant execution attempt observes the consumed offer.
	offer.Active = false
	if err := e.state.RollPut(offer); err != nil {
		return nil, err
	}

	providerPos, pairOffer, _, _, err := e.taker.PairTerms(pos)
	if err != nil {
		return nil, err
	}
	expectedRecovery := new(big.Int).Add(pos.TakerLocked, providerPos.ProviderLocked)

	vaultBefore, err := accountBalance(e.state, e.vault)
	if err != nil {
		return nil, err
	}

	// Custody the taker handle; the provider handle is already held.
	if err := e.taker.TransferPosition(caller, e.vault, pos.ID); err != nil {
		return nil, err
	}
	recovered, err := e.taker.CancelPairedPosition(e.vault, pos.ID)
	if err != nil {
		return nil, err
	}
	if recovered.Cmp(expectedRecovery) != 0 {
		return nil, errRollRecovered
	}

	// Pull any cash owed into the vault so every outflow below is covered.
	if preview.ToTaker.Sign() < 0 {
		if err := moveCash(e.state, caller, e.vault, new(big.Int).Neg(preview.ToTaker)); err != nil {
			return nil, err
		}
	}
	if preview.ToProvider.Sign() < 0 {
		if err := moveCash(e.state, offer.Provider, e.vault, new(big.Int).Neg(preview.ToProvider)); err != nil {
			return nil, err
		}
	}

	// Fund a single-shot offer with the new provider principal plus mint
	// fee and reopen the pair at the current price.
	offerFunding := new(big.Int).Add(preview.NewProviderLocked, preview.ProtocolFee)
	newOffer, err := e.taker.provider.offers.CreateOffer(e.vault, pairOffer.PutStrikeBps, pairOffer.CallStrikeBps, pairOffer.DurationSecs, offerFunding, nil)
	if err != nil {
		return nil, err
	}
	newPos, err := e.taker.OpenPairedPosition(e.vault, preview.NewTakerLocked, newOffer.ID)
	if err != nil {
		return nil, err
	}

	// Pay out what is owed and hand the fresh handles to their owners.
	if preview.ToTaker.Sign() > 0 {
		if err := moveCash(e.state, e.vault, caller, preview.ToTaker); err != nil {
			return nil, err
		}
	}
	if preview.ToProvider.Sign() > 0 {
		if err := moveCash(e.state, e.vault, offer.Provider, preview.ToProvider); err != nil {
			return nil, err
		}
	}
	if err := e.taker.TransferPosition(e.vault, caller, newPos.ID); err != nil {
		return nil, err
	}
	if err := e.taker.provider.TransferPosition(e.vault, offer.Provider, newPos.ProviderID); err != nil {
		return nil, err
	}

	vaultAfter, err := accountBalance(e.state, e.vault)
	if err != nil {
		return nil, err
	}
	if vaultBefore.Cmp(vaultAfter) != 0 {
		return nil, errRollConservation
	}

	result := &RollResult{
		RollID:        offer.ID,
		NewTakerID:    newPos.ID,
		NewProviderID: newPos.ProviderID,
		Price:         price,
		Fee:           fee,
		ToTaker:       preview.ToTaker,
		ToProvider:    preview.ToProvider,
	}
	e.emit(NewRollExecutedEvent(offer, result))
	return result, nil
}
