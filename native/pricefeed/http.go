package pricefeed

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource fetches the pair price from a JSON quote endpoint. The payload
// is expected to carry a decimal price string and a unix timestamp:
//
//	{"price": "184523000000", "timestamp": 1735600000}
type HTTPSource struct {
	client   HTTPDoer
	endpoint string
	pair     string
	apiKey   string
}

// NewHTTPSource constructs an HTTP price source for the given pair. When
// the client is nil http.DefaultClient is used; the API key is optional and
// only attached when supplied.
func NewHTTPSource(client HTTPDoer, endpoint, pair, apiKey string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		pair:     strings.TrimSpace(pair),
		apiKey:   strings.TrimSpace(apiKey),
	}
}

// CurrentPrice implements Source.
func (s *HTTPSource) CurrentPrice() (PricePoint, error) {
	if s == nil || s.endpoint == "" {
		return PricePoint{}, fmt.Errorf("pricefeed: http source not configured")
	}
	req, err := http.NewRequest(http.MethodGet, s.endpoint, nil)
	if err != nil {
		return PricePoint{}, err
	}
	values := url.Values{}
	values.Set("pair", s.pair)
	req.URL.RawQuery = values.Encode()
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return PricePoint{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PricePoint{}, fmt.Errorf("pricefeed: http source status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PricePoint{}, fmt.Errorf("pricefeed: http source decode: %w", err)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(payload.Price), 10)
	if !ok || price.Sign() <= 0 {
		return PricePoint{}, fmt.Errorf("pricefeed: http source returned invalid price %q", payload.Price)
	}
	observed := time.Now()
	if payload.Timestamp > 0 {
		observed = time.Unix(payload.Timestamp, 0)
	}
	return PricePoint{Price: price, ObservedAt: observed, Source: "http"}, nil
}
