package collar

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"collarcore/core/types"
)

const (
	EventTypeOfferCreated      = "collar.offer.created"
	EventTypeOfferUpdated      = "collar.offer.updated"
	EventTypeProviderMinted    = "collar.provider.minted"
	EventTypeProviderSettled   = "collar.provider.settled"
	EventTypeProviderCancelled = "collar.provider.cancelled"
	EventTypeProviderWithdrawn = "collar.provider.withdrawn"
	EventTypePairOpened        = "collar.pair.opened"
	EventTypePairSettled       = "collar.pair.settled"
	EventTypePairCancelled     = "collar.pair.cancelled"
	EventTypePairWithdrawn     = "collar.pair.withdrawn"
	EventTypeRollCreated       = "collar.roll.created"
	EventTypeRollCancelled     = "collar.roll.cancelled"
	EventTypeRollExecuted      = "collar.roll.executed"
)

// NewOfferCreatedEvent returns the canonical payload for a new liquidity
// offer.
func NewOfferCreatedEvent(o *LiquidityOffer) *types.Event {
	attrs := map[string]string{
		"offerId":       strconv.FormatUint(o.ID, 10),
		"provider":      hex.EncodeToString(o.Provider[:]),
		"available":     o.Available.String(),
		"putStrikeBps":  strconv.FormatUint(o.PutStrikeBps, 10),
		"callStrikeBps": strconv.FormatUint(o.CallStrikeBps, 10),
		"durationSecs":  strconv.FormatInt(o.DurationSecs, 10),
	}
	return &types.Event{Type: EventTypeOfferCreated, Attributes: attrs}
}

// NewOfferUpdatedEvent reports a capacity change on an existing offer.
func NewOfferUpdatedEvent(o *LiquidityOffer) *types.Event {
	attrs := map[string]string{
		"offerId":   strconv.FormatUint(o.ID, 10),
		"available": o.Available.String(),
	}
	return &types.Event{Type: EventTypeOfferUpdated, Attributes: attrs}
}

// NewProviderMintedEvent reports a provider position minted from an offer.
func NewProviderMintedEvent(p *ProviderPosition, fee *big.Int) *types.Event {
	attrs := providerAttrs(p)
	attrs["protocolFee"] = fee.String()
	return &types.Event{Type: EventTypeProviderMinted, Attributes: attrs}
}

// NewProviderSettledEvent reports the signed settlement transfer applied to
// a provider position.
func NewProviderSettledEvent(p *ProviderPosition, delta *big.Int) *types.Event {
	attrs := providerAttrs(p)
	attrs["delta"] = delta.String()
	attrs["withdrawable"] = p.Withdrawable.String()
	return &types.Event{Type: EventTypeProviderSettled, Attributes: attrs}
}

// NewProviderCancelledEvent reports a bilateral unwind of a provider
// position.
func NewProviderCancelledEvent(p *ProviderPosition) *types.Event {
	return &types.Event{Type: EventTypeProviderCancelled, Attributes: providerAttrs(p)}
}

// NewProviderWithdrawnEvent reports the terminal payout of a settled
// provider position.
func NewProviderWithdrawnEvent(p *ProviderPosition, amount *big.Int) *types.Event {
	attrs := providerAttrs(p)
	attrs["amount"] = amount.String()
	return &types.Event{Type: EventTypeProviderWithdrawn, Attributes: attrs}
}

// NewPairOpenedEvent reports a freshly opened paired position.
func NewPairOpenedEvent(t *TakerPosition, p *ProviderPosition) *types.Event {
	attrs := takerAttrs(t)
	attrs["providerLocked"] = p.ProviderLocked.String()
	attrs["expiration"] = strconv.FormatInt(p.Expiration, 10)
	return &types.Event{Type: EventTypePairOpened, Attributes: attrs}
}

// NewPairSettledEvent reports the settlement of both halves of a pair.
func NewPairSettledEvent(t *TakerPosition, delta *big.Int) *types.Event {
	attrs := takerAttrs(t)
	attrs["providerDelta"] = delta.String()
	attrs["settledPrice"] = t.SettledPrice.String()
	return &types.Event{Type: EventTypePairSettled, Attributes: attrs}
}

// NewPairCancelledEvent reports a consensual unwind of both halves.
func NewPairCancelledEvent(t *TakerPosition, total *big.Int) *types.Event {
	attrs := takerAttrs(t)
	attrs["recovered"] = total.String()
	return &types.Event{Type: EventTypePairCancelled, Attributes: attrs}
}

// NewPairWithdrawnEvent reports the terminal payout of a settled taker
// position.
func NewPairWithdrawnEvent(t *TakerPosition, amount *big.Int) *types.Event {
	attrs := takerAttrs(t)
	attrs["amount"] = amount.String()
	return &types.Event{Type: EventTypePairWithdrawn, Attributes: attrs}
}

// NewRollCreatedEvent reports a new roll offer.
func NewRollCreatedEvent(r *RollOffer) *types.Event {
	return &types.Event{Type: EventTypeRollCreated, Attributes: rollAttrs(r)}
}

// NewRollCancelledEvent reports a cancelled roll offer.
func NewRollCancelledEvent(r *RollOffer) *types.Event {
	return &types.Event{Type: EventTypeRollCancelled, Attributes: rollAttrs(r)}
}

// NewRollExecutedEvent reports an executed roll and the replacement pair.
func NewRollExecutedEvent(r *RollOffer, res *RollResult) *types.Event {
	attrs := rollAttrs(r)
	attrs["newTakerId"] = strconv.FormatUint(res.NewTakerID, 10)
	attrs["newProviderId"] = strconv.FormatUint(res.NewProviderID, 10)
	attrs["price"] = res.Price.String()
	attrs["fee"] = res.Fee.String()
	attrs["toTaker"] = res.ToTaker.String()
	attrs["toProvider"] = res.ToProvider.String()
	return &types.Event{Type: EventTypeRollExecuted, Attributes: attrs}
}

func providerAttrs(p *ProviderPosition) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return map[string]string{
		"positionId":     strconv.FormatUint(p.ID, 10),
		"owner":          hex.EncodeToString(p.Owner[:]),
		"offerId":        strconv.FormatUint(p.OfferID, 10),
		"takerId":        strconv.FormatUint(p.TakerID, 10),
		"providerLocked": p.ProviderLocked.String(),
	}
}

func takerAttrs(t *TakerPosition) map[string]string {
	if t == nil {
		return map[string]string{}
	}
	return map[string]string{
		"positionId":  strconv.FormatUint(t.ID, 10),
		"owner":       hex.EncodeToString(t.Owner[:]),
		"providerId":  strconv.FormatUint(t.ProviderID, 10),
		"startPrice":  t.StartPrice.String(),
		"takerLocked": t.TakerLocked.String(),
	}
}

func rollAttrs(r *RollOffer) map[string]string {
	if r == nil {
		return map[string]string{}
	}
	return map[string]string{
		"rollId":         strconv.FormatUint(r.ID, 10),
		"takerId":        strconv.FormatUint(r.TakerID, 10),
		"provider":       hex.EncodeToString(r.Provider[:]),
		"feeAmount":      r.FeeAmount.String(),
		"referencePrice": r.ReferencePrice.String(),
		"deadline":       strconv.FormatInt(r.Deadline, 10),
	}
}
