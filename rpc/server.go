// Package rpc exposes the collar engines over a JSON HTTP API.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"collarcore/native/collar"
	"collarcore/observability"
	"collarcore/storage"
)

const maxRequestBytes = 1 << 20

// Server encapsulates the engine handles behind the HTTP API.
type Server struct {
	offers   *collar.OfferEngine
	provider *collar.ProviderEngine
	taker    *collar.TakerEngine
	rolls    *collar.RollEngine
	state    *storage.CollarState

	authToken string
	log       *slog.Logger

	router http.Handler
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Offers   *collar.OfferEngine
	Provider *collar.ProviderEngine
	Taker    *collar.TakerEngine
	Rolls    *collar.RollEngine
	State    *storage.CollarState

	AuthToken string
	Logger    *slog.Logger
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	srv := &Server{
		offers:    cfg.Offers,
		provider:  cfg.Provider,
		taker:     cfg.Taker,
		rolls:     cfg.Rolls,
		state:     cfg.State,
		authToken: strings.TrimSpace(cfg.AuthToken),
		log:       cfg.Logger,
	}
	if srv.log == nil {
		srv.log = slog.Default()
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)
	r.Use(s.authenticate)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/offers", s.CreateOffer)
		api.Get("/offers", s.ListOffers)
		api.Get("/offers/{id}", s.GetOffer)
		api.Post("/offers/{id}/amount", s.UpdateOfferAmount)

		api.Post("/positions/open", s.OpenPairedPosition)

		api.Get("/taker", s.ListTakerPositions)
		api.Get("/taker/{id}", s.GetTakerPosition)
		api.Post("/taker/{id}/settle", s.SettleTaker)
		api.Post("/taker/{id}/settle-cancelled", s.SettleTakerAsCancelled)
		api.Post("/taker/{id}/cancel", s.CancelPair)
		api.Post("/taker/{id}/withdraw", s.WithdrawTaker)
		api.Post("/taker/{id}/transfer", s.TransferTaker)

		api.Get("/provider", s.ListProviderPositions)
		api.Get("/provider/{id}", s.GetProviderPosition)
		api.Post("/provider/{id}/withdraw", s.WithdrawProvider)
		api.Post("/provider/{id}/transfer", s.TransferProvider)

		api.Post("/rolls", s.CreateRollOffer)
		api.Get("/rolls/{id}", s.GetRollOffer)
		api.Get("/rolls/{id}/fee", s.RollFee)
		api.Get("/rolls/{id}/preview", s.RollPreview)
		api.Post("/rolls/{id}/cancel", s.CancelRollOffer)
		api.Post("/rolls/{id}/execute", s.ExecuteRoll)

		api.Get("/accounts/{address}", s.GetAccount)
		api.Get("/state/next-ids", s.NextIDs)
	})

	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		observability.ModuleMetrics().Observe("rpc", r.Method+" "+routePattern, ww.Status(), time.Since(start))
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" && r.URL.Path != "/healthz" {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header != "Bearer "+s.authToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if collar.IsNotFound(err) {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func pathID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseAddress(raw string) (collar.Address, error) {
	var addr collar.Address
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return addr, errors.New("address required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: want %d bytes", raw, len(addr))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseAmount(raw string, allowNegative bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if !allowNegative && value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return value, nil
}
