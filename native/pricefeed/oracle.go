// Package pricefeed supplies the integer price oracle consumed by the
// collar engines. Sources report prices as fixed-point integers in the
// deployment's quote precision; the aggregator consults them in priority
// order, enforces a freshness window, and keeps a bounded sample history so
// past prices can be served for delayed settlements.
package pricefeed

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

// PricePoint is a single observed price with its observation time.
type PricePoint struct {
	Price      *big.Int
	ObservedAt time.Time
	Source     string
}

// Clone returns a deep copy of the price point.
func (p PricePoint) Clone() PricePoint {
	clone := PricePoint{ObservedAt: p.ObservedAt, Source: p.Source}
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	}
	return clone
}

// Source resolves the current price of the configured asset pair.
type Source interface {
	CurrentPrice() (PricePoint, error)
}

// ErrNoFreshPrice indicates no registered source produced a price within the
// freshness window.
var ErrNoFreshPrice = errors.New("pricefeed: no fresh price available")

// ErrNoHistory indicates the aggregator has no sample near the requested
// timestamp.
var ErrNoHistory = errors.New("pricefeed: no recorded price near timestamp")

// Aggregator consults registered sources in priority order until a fresh,
// positive price is obtained, recording each accepted sample for later
// past-price lookups.
type Aggregator struct {
	mu         sync.RWMutex
	priority   []string
	sources    map[string]Source
	maxAge     time.Duration
	history    []PricePoint
	historyCap int
	// maxDrift bounds how far a recorded sample may sit from a requested
	// past timestamp before PastPrice refuses to answer.
	maxDrift time.Duration
	nowFn    func() time.Time
}

// NewAggregator constructs an aggregator with the provided priority order
// and freshness window.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority:   append([]string{}, priority...),
		sources:    make(map[string]Source),
		maxAge:     maxAge,
		historyCap: 512,
		maxDrift:   time.Hour,
		nowFn:      time.Now,
	}
}

// Register adds or replaces a source under the supplied identifier.
// Identifiers are lowercased so lookups are casing-independent.
func (a *Aggregator) Register(name string, src Source) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[trimmed] = src
	for _, entry := range a.priority {
		if entry == trimmed {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// SetMaxAge updates the freshness window used when filtering prices.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// SetMaxDrift bounds the tolerated distance between a requested past
// timestamp and the nearest recorded sample.
func (a *Aggregator) SetMaxDrift(d time.Duration) {
	if a == nil || d <= 0 {
		return
	}
	a.mu.Lock()
	a.maxDrift = d
	a.mu.Unlock()
}

// SetHistoryCap bounds the stored sample count. Non-positive values reset
// the default.
func (a *Aggregator) SetHistoryCap(cap int) {
	if a == nil {
		return
	}
	if cap <= 0 {
		cap = 512
	}
	a.mu.Lock()
	a.historyCap = cap
	if len(a.history) > cap {
		a.history = append([]PricePoint{}, a.history[len(a.history)-cap:]...)
	}
	a.mu.Unlock()
}

// SetNowFunc overrides the clock, primarily used in tests.
func (a *Aggregator) SetNowFunc(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

// CurrentPrice implements the collar engines' price source: it walks the
// priority list and returns the first fresh, positive price.
func (a *Aggregator) CurrentPrice() (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("pricefeed: aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	now := a.nowFn()
	a.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = now.Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		src := a.sources[name]
		a.mu.RUnlock()
		if src == nil {
			continue
		}
		point, err := src.CurrentPrice()
		if err != nil {
			lastErr = err
			continue
		}
		if point.Price == nil || point.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("pricefeed: source %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && point.ObservedAt.Before(cutoff) {
			lastErr = ErrNoFreshPrice
			continue
		}
		if strings.TrimSpace(point.Source) == "" {
			point.Source = name
		}
		a.record(point)
		return new(big.Int).Set(point.Price), nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshPrice
	}
	return nil, lastErr
}

// PastPrice returns the recorded sample closest to the unix timestamp,
// failing when nothing within the drift tolerance was observed. History is
// best-effort: a fresh process has none, and settlement then degrades to
// the cancellation fallback path.
func (a *Aggregator) PastPrice(timestamp int64) (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("pricefeed: aggregator not configured")
	}
	target := time.Unix(timestamp, 0)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.history) == 0 {
		return nil, ErrNoHistory
	}
	idx := sort.Search(len(a.history), func(i int) bool {
		return !a.history[i].ObservedAt.Before(target)
	})
	best := -1
	bestDiff := time.Duration(0)
	for _, candidate := range []int{idx - 1, idx} {
		if candidate < 0 || candidate >= len(a.history) {
			continue
		}
		diff := a.history[candidate].ObservedAt.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best = candidate
			bestDiff = diff
		}
	}
	if best == -1 || bestDiff > a.maxDrift {
		return nil, ErrNoHistory
	}
	return new(big.Int).Set(a.history[best].Price), nil
}

// record inserts the sample in ObservedAt order; PastPrice binary-searches
// the history, and sources may report timestamps out of acceptance order.
func (a *Aggregator) record(point PricePoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	clone := point.Clone()
	idx := sort.Search(len(a.history), func(i int) bool {
		return a.history[i].ObservedAt.After(clone.ObservedAt)
	})
	a.history = append(a.history, PricePoint{})
	copy(a.history[idx+1:], a.history[idx:])
	a.history[idx] = clone
	if len(a.history) > a.historyCap {
		a.history = a.history[len(a.history)-a.historyCap:]
	}
}

// ManualSource is an in-memory source used for tests and manual overrides
// during incident response.
type ManualSource struct {
	mu    sync.RWMutex
	point PricePoint
	set   bool
}

// NewManualSource constructs an empty manual source.
func NewManualSource() *ManualSource {
	return &ManualSource{}
}

// Set stores the price with the provided observation time.
func (m *ManualSource) Set(price *big.Int, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	m.mu.Lock()
	m.point = PricePoint{Price: new(big.Int).Set(price), ObservedAt: ts, Source: "manual"}
	m.set = true
	m.mu.Unlock()
}

// CurrentPrice implements Source.
func (m *ManualSource) CurrentPrice() (PricePoint, error) {
	if m == nil {
		return PricePoint{}, fmt.Errorf("pricefeed: manual source not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return PricePoint{}, fmt.Errorf("pricefeed: manual source has no price")
	}
	return m.point.Clone(), nil
}
