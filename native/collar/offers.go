package collar

import (
	"errors"
	"math/big"
	"time"

	"collarcore/core/events"
	nativecommon "collarcore/native/common"
)

var (
	errOfferNotFound      = errors.New("offer engine: offer not found")
	errOfferNotPoster     = errors.New("offer engine: caller is not the offer poster")
	errOfferPolicy        = errors.New("offer engine: offer terms outside current policy")
	errOfferPairForbidden = errors.New("offer engine: asset pair not permitted to open positions")
	errOfferNegative      = errors.New("offer engine: amount must be non-negative")
	errOfferCapacity      = errors.New("offer engine: amount exceeds offer capacity")
)

// OfferEngine maintains the registry of open-ended liquidity offers and the
// vault account holding their capacity.
type OfferEngine struct {
	state     engineState
	policy    PolicyView
	vault     Address
	assetPair string
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	nowFn     func() int64
}

// NewOfferEngine constructs an offer engine bound to the capacity vault
// account for the given asset pair.
func NewOfferEngine(vault Address, assetPair string) *OfferEngine {
	return &OfferEngine{
		vault:     vault,
		assetPair: assetPair,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *OfferEngine) SetState(state engineState) { e.state = state }

// SetPolicy wires the policy collaborator consulted on every create and mint.
func (e *OfferEngine) SetPolicy(p PolicyView) {
	if e == nil {
		return
	}
	e.policy = p
}

// SetEmitter configures the event emitter used by the engine.
func (e *OfferEngine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *OfferEngine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *OfferEngine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *OfferEngine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *OfferEngine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// checkPolicy validates offer terms against the live policy collaborator.
// Consulted again at every mint so tightened policy degrades stale offers to
// "cannot be minted from" instead of force-cancelling them.
func (e *OfferEngine) checkPolicy(putBps, callBps uint64, durationSecs int64) error {
	if e.policy == nil {
		if putBps >= bpsDenominator || callBps <= bpsDenominator {
			return errOfferPolicy
		}
		if durationSecs <= 0 {
			return errOfferPolicy
		}
		return nil
	}
	if !e.policy.AllowOpen(e.assetPair, offersModuleName) {
		return errOfferPairForbidden
	}
	if !e.policy.ValidStrikes(putBps, callBps) {
		return errOfferPolicy
	}
	if !e.policy.ValidDuration(durationSecs) {
		return errOfferPolicy
	}
	return nil
}

// CreateOffer registers a new liquidity offer and pulls amount from the
// provider into the offers vault.
func (e *OfferEngine) CreateOffer(provider Address, putBps, callBps uint64, durationSecs int64, amount, minLocked *big.Int) (*LiquidityOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, offersModuleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if minLocked != nil && minLocked.Sign() < 0 {
		return nil, errOfferNegative
	}
	if err := e.checkPolicy(putBps, callBps, durationSecs); err != nil {
		return nil, err
	}
	if err := moveCash(e.state, provider, e.vault, amount); err != nil {
		return nil, err
	}
	id, err := e.state.OfferNextID()
	if err != nil {
		return nil, err
	}
	offer := &LiquidityOffer{
		ID:            id,
		Provider:      provider,
		Available:     new(big.Int).Set(amount),
		PutStrikeBps:  putBps,
		CallStrikeBps: callBps,
		DurationSecs:  durationSecs,
		MinLocked:     copyBig(minLocked),
		CreatedAt:     e.now(),
	}
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(offer))
	return offer.Clone(), nil
}

// UpdateOfferAmount adjusts the unconsumed capacity of an offer, pulling the
// increase from (or paying the decrease to) the original poster.
func (e *OfferEngine) UpdateOfferAmount(caller Address, offerID uint64, newAmount *big.Int) (*LiquidityOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, offersModuleName); err != nil {
		return nil, err
	}
	if newAmount == nil || newAmount.Sign() < 0 {
		return nil, errOfferNegative
	}
	offer, err := e.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer.Provider != caller {
		return nil, errOfferNotPoster
	}
	delta := new(big.Int).Sub(newAmount, offer.Available)
	switch delta.Sign() {
	case 1:
		if err := moveCash(e.state, caller, e.vault, delta); err != nil {
			return nil, err
		}
	case -1:
		if err := moveCash(e.state, e.vault, caller, new(big.Int).Neg(delta)); err != nil {
			return nil, err
		}
	}
	offer.Available = new(big.Int).Set(newAmount)
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	e.emit(NewOfferUpdatedEvent(offer))
	return offer.Clone(), nil
}

// Offer returns a copy of the stored offer.
func (e *OfferEngine) Offer(offerID uint64) (*LiquidityOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadOffer(offerID)
}

func (e *OfferEngine) loadOffer(offerID uint64) (*LiquidityOffer, error) {
	offer, ok := e.state.OfferGet(offerID)
	if !ok {
		return nil, errOfferNotFound
	}
	return SanitizeOffer(offer)
}

// consumeCapacity is the restricted entry used by the provider store when a
// mint draws principal plus fee out of an offer. Policy is re-checked here.
func (e *OfferEngine) consumeCapacity(offer *LiquidityOffer, total *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.checkPolicy(offer.PutStrikeBps, offer.CallStrikeBps, offer.DurationSecs); err != nil {
		return err
	}
	if offer.Available.Cmp(total) < 0 {
		return errOfferCapacity
	}
	offer.Available = new(big.Int).Sub(offer.Available, total)
	return e.state.OfferPut(offer)
}
