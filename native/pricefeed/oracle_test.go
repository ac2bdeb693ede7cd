package pricefeed

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticSource struct {
	point PricePoint
	err   error
}

func (s *staticSource) CurrentPrice() (PricePoint, error) {
	if s.err != nil {
		return PricePoint{}, s.err
	}
	return s.point.Clone(), nil
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestAggregatorPriorityOrder(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator([]string{"primary", "fallback"}, time.Minute)
	agg.SetNowFunc(fixedClock(now))
	agg.Register("primary", &staticSource{point: PricePoint{Price: big.NewInt(1000), ObservedAt: now}})
	agg.Register("fallback", &staticSource{point: PricePoint{Price: big.NewInt(999), ObservedAt: now}})

	price, err := agg.CurrentPrice()
	require.NoError(t, err)
	require.Equal(t, int64(1000), price.Int64())
}

func TestAggregatorFallsBackOnError(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator([]string{"primary", "fallback"}, time.Minute)
	agg.SetNowFunc(fixedClock(now))
	agg.Register("primary", &staticSource{err: errors.New("connection refused")})
	agg.Register("fallback", &staticSource{point: PricePoint{Price: big.NewInt(999), ObservedAt: now}})

	price, err := agg.CurrentPrice()
	require.NoError(t, err)
	require.Equal(t, int64(999), price.Int64())
}

func TestAggregatorRejectsStalePrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator([]string{"primary"}, time.Minute)
	agg.SetNowFunc(fixedClock(now))
	agg.Register("primary", &staticSource{point: PricePoint{
		Price:      big.NewInt(1000),
		ObservedAt: now.Add(-2 * time.Minute),
	}})

	_, err := agg.CurrentPrice()
	require.ErrorIs(t, err, ErrNoFreshPrice)
}

func TestAggregatorRejectsNonPositivePrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator(nil, time.Minute)
	agg.SetNowFunc(fixedClock(now))
	agg.Register("primary", &staticSource{point: PricePoint{Price: big.NewInt(0), ObservedAt: now}})

	_, err := agg.CurrentPrice()
	require.Error(t, err)
}

func TestPastPriceNearestSample(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	agg := NewAggregator([]string{"manual"}, 0)
	manual := NewManualSource()
	agg.Register("manual", manual)

	for i, price := range []int64{1000, 1010, 990} {
		ts := base.Add(time.Duration(i) * 10 * time.Minute)
		manual.Set(big.NewInt(price), ts)
		agg.SetNowFunc(fixedClock(ts))
		_, err := agg.CurrentPrice()
		require.NoError(t, err)
	}

	// Two minutes past the second sample resolves to it.
	price, err := agg.PastPrice(base.Add(12 * time.Minute).Unix())
	require.NoError(t, err)
	require.Equal(t, int64(1010), price.Int64())

	// Outside the drift tolerance nothing is served.
	_, err = agg.PastPrice(base.Add(48 * time.Hour).Unix())
	require.ErrorIs(t, err, ErrNoHistory)
}

func TestPastPriceEmptyHistory(t *testing.T) {
	agg := NewAggregator(nil, time.Minute)
	_, err := agg.PastPrice(time.Now().Unix())
	require.ErrorIs(t, err, ErrNoHistory)
}

func TestHistoryCapBounded(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	agg := NewAggregator([]string{"manual"}, 0)
	agg.SetHistoryCap(4)
	agg.SetMaxDrift(time.Minute)
	manual := NewManualSource()
	agg.Register("manual", manual)

	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		manual.Set(big.NewInt(int64(1000+i)), ts)
		agg.SetNowFunc(fixedClock(ts))
		_, err := agg.CurrentPrice()
		require.NoError(t, err)
	}

	// The oldest samples were evicted.
	_, err := agg.PastPrice(base.Unix())
	require.ErrorIs(t, err, ErrNoHistory)

	price, err := agg.PastPrice(base.Add(9 * time.Minute).Unix())
	require.NoError(t, err)
	require.Equal(t, int64(1009), price.Int64())
}

func TestManualSourceUnset(t *testing.T) {
	manual := NewManualSource()
	_, err := manual.CurrentPrice()
	require.Error(t, err)
}

func TestPastPriceOutOfOrderSamples(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	agg := NewAggregator([]string{"manual"}, 0)
	manual := NewManualSource()
	agg.Register("manual", manual)

	// Samples arrive out of timestamp order, as an upstream feed may report
	// a delayed quote after a fresher one was already recorded.
	for _, sample := range []struct {
		price  int64
		offset time.Duration
	}{
		{1000, 0},
		{1020, 20 * time.Minute},
		{1010, 10 * time.Minute},
	} {
		ts := base.Add(sample.offset)
		manual.Set(big.NewInt(sample.price), ts)
		agg.SetNowFunc(fixedClock(ts))
		_, err := agg.CurrentPrice()
		require.NoError(t, err)
	}

	// Nearest-sample lookup still resolves by timestamp, not arrival order.
	price, err := agg.PastPrice(base.Add(12 * time.Minute).Unix())
	require.NoError(t, err)
	require.Equal(t, int64(1010), price.Int64())

	price, err = agg.PastPrice(base.Add(19 * time.Minute).Unix())
	require.NoError(t, err)
	require.Equal(t, int64(1020), price.Int64())
}
