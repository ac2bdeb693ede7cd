package collar

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Address identifies a participant or module vault account.
type Address [20]byte

// String renders the address as 0x-prefixed hex.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler so addresses round-trip as
// hex strings in JSON payloads and persisted records.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	trimmed := strings.TrimPrefix(strings.TrimSpace(string(text)), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", string(text), err)
	}
	if len(decoded) != len(a) {
		return fmt.Errorf("invalid address %q: want %d bytes, got %d", string(text), len(a), len(decoded))
	}
	copy(a[:], decoded)
	return nil
}

// LiquidityOffer is an open-ended provider commitment that taker positions
// are minted from. Offers are never deleted; Available is a mutable balance
// the original poster can top up or withdraw while unconsumed.
type LiquidityOffer struct {
	ID       uint64  `json:"id"`
	Provider Address `json:"provider"`
	// Available is the capacity remaining for future mints, denominated in
	// the settlement asset.
	Available *big.Int `json:"available"`
	// PutStrikeBps is the price floor expressed in basis points of the start
	// price. Doubles as the loan-to-value ratio. Strictly below 10_000.
	PutStrikeBps uint64 `json:"putStrikeBps"`
	// CallStrikeBps is the price ceiling in basis points. Strictly above
	// 10_000; a zero-width range would divide by zero at settlement.
	CallStrikeBps uint64 `json:"callStrikeBps"`
	// DurationSecs fixes the lifetime of positions minted from this offer.
	DurationSecs int64 `json:"durationSecs"`
	// MinLocked optionally floors the provider principal per mint.
	MinLocked *big.Int `json:"minLocked"`
	CreatedAt int64    `json:"createdAt"`
}

// Clone returns a deep copy of the offer.
func (o *LiquidityOffer) Clone() *LiquidityOffer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Available = copyBig(o.Available)
	clone.MinLocked = copyBig(o.MinLocked)
	return &clone
}

// SanitizeOffer validates and normalises the offer, returning a clone with
// non-nil amount fields. The original value is not mutated.
func SanitizeOffer(o *LiquidityOffer) (*LiquidityOffer, error) {
	if o == nil {
		return nil, fmt.Errorf("nil offer")
	}
	clone := o.Clone()
	if clone.Available.Sign() < 0 {
		return nil, fmt.Errorf("offer available must be non-negative")
	}
	if clone.MinLocked.Sign() < 0 {
		return nil, fmt.Errorf("offer min locked must be non-negative")
	}
	if clone.PutStrikeBps >= bpsDenominator || clone.CallStrikeBps <= bpsDenominator {
		return nil, fmt.Errorf("offer strikes degenerate: put %d call %d", clone.PutStrikeBps, clone.CallStrikeBps)
	}
	if clone.DurationSecs <= 0 {
		return nil, fmt.Errorf("offer duration must be positive")
	}
	return clone, nil
}

// ProviderPosition is the liquidity-side half of a paired position. The
// record doubles as its ownership handle: Owner names the current holder and
// Burned tombstones the handle once withdrawn or cancelled.
type ProviderPosition struct {
	ID     uint64  `json:"id"`
	Owner  Address `json:"owner"`
	Burned bool    `json:"burned"`
	// OfferID back-references the originating offer for strike and duration
	// lookup; the percentages are deliberately not duplicated here.
	OfferID uint64 `json:"offerId"`
	// TakerID back-references the paired taker position.
	TakerID    uint64 `json:"takerId"`
	Expiration int64  `json:"expiration"`
	// ProviderLocked is the principal committed at mint time, immutable.
	ProviderLocked *big.Int `json:"providerLocked"`
	Settled        bool     `json:"settled"`
	// Withdrawable is set exactly once, at settlement.
	Withdrawable *big.Int `json:"withdrawable"`
}

// Clone returns a deep copy of the provider position.
func (p *ProviderPosition) Clone() *ProviderPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ProviderLocked = copyBig(p.ProviderLocked)
	clone.Withdrawable = copyBig(p.Withdrawable)
	return &clone
}

// TakerPosition is the principal-side half of a paired position. Strike
// prices and duration are derived from the paired provider position's offer
// so the two sides cannot diverge.
type TakerPosition struct {
	ID     uint64  `json:"id"`
	Owner  Address `json:"owner"`
	Burned bool    `json:"burned"`
	// ProviderID references the paired provider position.
	ProviderID uint64 `json:"providerId"`
	// StartPrice is the oracle price captured when the pair was opened.
	StartPrice *big.Int `json:"startPrice"`
	// TakerLocked is the principal locked at mint time, immutable.
	TakerLocked *big.Int `json:"takerLocked"`
	Settled     bool     `json:"settled"`
	// SettledPrice records the end price used at settlement. Zero is the
	// sentinel for the no-price-available cancellation fallback.
	SettledPrice *big.Int `json:"settledPrice"`
	Withdrawable *big.Int `json:"withdrawable"`
}

// Clone returns a deep copy of the taker position.
func (t *TakerPosition) Clone() *TakerPosition {
	if t == nil {
		return nil
	}
	clone := *t
	clone.StartPrice = copyBig(t.StartPrice)
	clone.TakerLocked = copyBig(t.TakerLocked)
	clone.SettledPrice = copyBig(t.SettledPrice)
	clone.Withdrawable = copyBig(t.Withdrawable)
	return &clone
}

// RollOffer is a provider's standing offer to unwind and reopen a specific
// paired position at fresh terms. Consumed exactly once by the taker-handle
// owner or cancelled by the provider; Active flips to false irreversibly.
type RollOffer struct {
	ID      uint64 `json:"id"`
	TakerID uint64 `json:"takerId"`
	// Provider is the creator; the provider handle is pulled into engine
	// custody while the offer is active and returned on cancellation.
	Provider Address `json:"provider"`
	// FeeAmount is the signed base fee, positive in the provider's favour.
	FeeAmount *big.Int `json:"feeAmount"`
	// FeeDeltaFactorBps scales the fee with the realised price move since
	// the offer was posted. May be negative.
	FeeDeltaFactorBps int64 `json:"feeDeltaFactorBps"`
	// ReferencePrice is the oracle price snapshotted at creation.
	ReferencePrice *big.Int `json:"referencePrice"`
	// MinPrice/MaxPrice bound the execution price.
	MinPrice *big.Int `json:"minPrice"`
	MaxPrice *big.Int `json:"maxPrice"`
	// MinToProvider floors the signed provider transfer at execution.
	MinToProvider *big.Int `json:"minToProvider"`
	Deadline      int64    `json:"deadline"`
	Active        bool     `json:"active"`
}

// Clone returns a deep copy of the roll offer.
func (r *RollOffer) Clone() *RollOffer {
	if r == nil {
		return nil
	}
	clone := *r
	clone.FeeAmount = copyBig(r.FeeAmount)
	clone.ReferencePrice = copyBig(r.ReferencePrice)
	clone.MinPrice = copyBig(r.MinPrice)
	clone.MaxPrice = copyBig(r.MaxPrice)
	clone.MinToProvider = copyBig(r.MinToProvider)
	return &clone
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
