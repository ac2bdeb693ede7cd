package collar

import "math/big"

// SettleAmounts computes the deterministic payout split for a paired
// position. It returns the taker's final balance and the signed transfer to
// the provider: a positive delta is pulled from the taker side, a negative
// delta is paid out of the provider's principal. The split is exactly
// zero-sum: takerBalance + providerLocked + providerDelta ==
// takerLocked + providerLocked for every input.
//
// endPrice is clamped into [putPrice, callPrice]; the payout is flat outside
// the strikes and linear between them. Divisions truncate, shaving at most
// one unit off the payer's outflow. The strike ranges are guaranteed nonzero
// structurally at position-open time and are not re-validated here.
func SettleAmounts(startPrice, putPrice, callPrice, takerLocked, providerLocked, endPrice *big.Int) (*big.Int, *big.Int) {
	end := copyBig(endPrice)
	if end.Cmp(putPrice) < 0 {
		end = copyBig(putPrice)
	}
	if end.Cmp(callPrice) > 0 {
		end = copyBig(callPrice)
	}

	switch end.Cmp(startPrice) {
	case 0:
		return copyBig(takerLocked), big.NewInt(0)
	case -1:
		// Price fell toward the floor: a proportional slice of the taker's
		// principal migrates to the provider.
		num := new(big.Int).Sub(startPrice, end)
		num.Mul(num, takerLocked)
		den := new(big.Int).Sub(startPrice, putPrice)
		gain := num.Quo(num, den)
		taker := new(big.Int).Sub(takerLocked, gain)
		return taker, gain
	default:
		// Price rose toward the ceiling: the taker captures a proportional
		// slice of the provider's principal.
		num := new(big.Int).Sub(end, startPrice)
		num.Mul(num, providerLocked)
		den := new(big.Int).Sub(callPrice, startPrice)
		gain := num.Quo(num, den)
		taker := new(big.Int).Add(takerLocked, gain)
		return taker, new(big.Int).Neg(gain)
	}
}

// ProviderLockedFor scales the provider principal so both sides fund the
// collar in the same ratio as their strike ranges:
// takerLocked * (callBps - 100%) / (100% - putBps). The division floors,
// biasing against the taker to discourage dust-sized positions.
func ProviderLockedFor(takerLocked *big.Int, putBps, callBps uint64) *big.Int {
	if takerLocked == nil || takerLocked.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(takerLocked, new(big.Int).SetUint64(callBps-bpsDenominator))
	return num.Quo(num, new(big.Int).SetUint64(bpsDenominator-putBps))
}

// StrikePrice derives an absolute strike from the start price and a strike
// percentage in basis points, truncating toward zero.
func StrikePrice(startPrice *big.Int, strikeBps uint64) *big.Int {
	if startPrice == nil {
		return big.NewInt(0)
	}
	price := new(big.Int).Mul(startPrice, new(big.Int).SetUint64(strikeBps))
	return price.Quo(price, basisPoints)
}

// MintFee computes the protocol fee charged on the provider principal at
// mint time, scaled by the position duration against an annualised rate. The
// fee rounds up so that splitting a position into many small mints never
// avoids fees.
func MintFee(providerLocked *big.Int, durationSecs int64, aprBps uint64) *big.Int {
	if providerLocked == nil || providerLocked.Sign() <= 0 || durationSecs <= 0 || aprBps == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(providerLocked, new(big.Int).SetUint64(aprBps))
	num.Mul(num, big.NewInt(durationSecs))
	den := new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
	fee, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() > 0 {
		fee.Add(fee, big.NewInt(1))
	}
	return fee
}
