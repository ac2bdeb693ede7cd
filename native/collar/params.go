package collar

import "math/big"

const (
	bpsDenominator uint64 = 10_000
	secondsPerYear int64  = 31_536_000
)

var basisPoints = big.NewInt(10_000)

const (
	offersModuleName    = "collar.offers"
	positionsModuleName = "collar.positions"
	rollsModuleName     = "collar.rolls"
)

// PolicyView is the config/policy collaborator consulted at every offer
// creation and position mint. It is never cached by the engines: policy may
// tighten over time and existing offers then degrade to "cannot be minted
// from" rather than being force-cancelled.
type PolicyView interface {
	// AllowOpen reports whether the asset pair is currently permitted to
	// open new positions through the named component.
	AllowOpen(assetPair, component string) bool
	// ValidStrikes reports whether the strike percentages are within policy.
	ValidStrikes(putBps, callBps uint64) bool
	// ValidDuration reports whether the offer duration is within policy.
	ValidDuration(secs int64) bool
}

// Policy is the concrete PolicyView used by the daemon, loaded from config.
type Policy struct {
	AllowedPairs    map[string]bool
	MinPutStrikeBps uint64
	MaxCallBps      uint64
	MinDurationSecs int64
	MaxDurationSecs int64
}

// AllowOpen implements PolicyView. An empty pair allow-list permits all
// pairs so local deployments work without configuration.
func (p *Policy) AllowOpen(assetPair, component string) bool {
	if p == nil {
		return true
	}
	if len(p.AllowedPairs) == 0 {
		return true
	}
	return p.AllowedPairs[assetPair]
}

// ValidStrikes implements PolicyView. The structural bounds
// (put < 100% < call) are enforced unconditionally; configured bounds narrow
// them further.
func (p *Policy) ValidStrikes(putBps, callBps uint64) bool {
	if putBps >= bpsDenominator || callBps <= bpsDenominator {
		return false
	}
	if p == nil {
		return true
	}
	if p.MinPutStrikeBps > 0 && putBps < p.MinPutStrikeBps {
		return false
	}
	if p.MaxCallBps > 0 && callBps > p.MaxCallBps {
		return false
	}
	return true
}

// ValidDuration implements PolicyView.
func (p *Policy) ValidDuration(secs int64) bool {
	if secs <= 0 {
		return false
	}
	if p == nil {
		return true
	}
	if p.MinDurationSecs > 0 && secs < p.MinDurationSecs {
		return false
	}
	if p.MaxDurationSecs > 0 && secs > p.MaxDurationSecs {
		return false
	}
	return true
}

// PriceSource is the oracle collaborator. CurrentPrice must return a nonzero
// price; PastPrice may fail when history is unavailable, which degrades
// settlement to the cancellation fallback after the grace delay.
type PriceSource interface {
	CurrentPrice() (*big.Int, error)
	PastPrice(timestamp int64) (*big.Int, error)
}
