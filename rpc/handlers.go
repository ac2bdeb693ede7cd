package rpc

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"collarcore/native/collar"
)

type createOfferRequest struct {
	Provider      string `json:"provider"`
	PutStrikeBps  uint64 `json:"putStrikeBps"`
	CallStrikeBps uint64 `json:"callStrikeBps"`
	DurationSecs  int64  `json:"durationSecs"`
	Amount        string `json:"amount"`
	MinLocked     string `json:"minLocked,omitempty"`
}

func (s *Server) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	provider, err := parseAddress(req.Provider)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount, false)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var minLocked *big.Int
	if req.MinLocked != "" {
		if minLocked, err = parseAmount(req.MinLocked, false); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	offer, err := s.offers.CreateOffer(provider, req.PutStrikeBps, req.CallStrikeBps, req.DurationSecs, amount, minLocked)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, offer)
}

func (s *Server) GetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	offer, err := s.offers.Offer(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, offer)
}

type updateOfferRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) UpdateOfferAmount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req updateOfferRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount, false)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	offer, err := s.offers.UpdateOfferAmount(caller, id, amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, offer)
}

type openPositionRequest struct {
	Caller      string `json:"caller"`
	OfferID     uint64 `json:"offerId"`
	TakerLocked string `json:"takerLocked"`
}

func (s *Server) OpenPairedPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	takerLocked, err := parseAmount(req.TakerLocked, false)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	pos, err := s.taker.OpenPairedPosition(caller, takerLocked, req.OfferID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pos)
}

func (s *Server) GetTakerPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	pos, err := s.taker.Position(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) callerFromBody(w http.ResponseWriter, r *http.Request) (collar.Address, bool) {
	var req callerRequest
	if !s.decodeBody(w, r, &req) {
		return collar.Address{}, false
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return collar.Address{}, false
	}
	return caller, true
}

func (s *Server) SettleTaker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := s.callerFromBody(w, r)
	if !ok {
		return
	}
	pos, err := s.taker.SettlePairedPosition(caller, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) SettleTakerAsCancelled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := s.callerFromBody(w, r)
	if !ok {
		return
	}
	pos, err := s.taker.SettleAsCancelled(caller, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) CancelPair(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := s.callerFromBody(w, r)
	if !ok {
		return
	}
	refunded, err := s.taker.CancelPairedPosition(caller, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"refunded": refunded.String()})
}

func (s *Server) WithdrawTaker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := s.callerFromBody(w, r)
	if !ok {
		return
	}
	amount, err := s.taker.WithdrawFromSettled(caller, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"withdrawn": amount.String()})
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) transferFromBody(w http.ResponseWriter, r *http.Request) (collar.Address, collar.Address, bool) {
	var req transferRequest
	if !s.decodeBody(w, r, &req) {
		return collar.Address{}, collar.Address{}, false
	}
	from, err := parseAddress(req.From)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return collar.Address{}, collar.Address{}, false
	}
	to, err := parseAddress(req.To)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return collar.Address{}, collar.Address{}, false
	}
	return from, to, true
}

func (s *Server) TransferTaker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	from, to, ok := s.transferFromBody(w, r)
	if !ok {
		return
	}
	if err := s.taker.TransferPosition(from, to, id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (s *Server) GetProviderPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	pos, err := s.provider.Position(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) WithdrawProvider(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := s.callerFromBody(w, r)
	if !ok {
		return
	}
	amount, err := s.provider.WithdrawFromSettled(caller, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"withdrawn": amount.String()})
}

func (s *Server) TransferProvider(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	from, to, ok := s.transferFromBody(w, r)
	if !ok {
		return
	}
	if err := s.provider.TransferPosition(from, to, id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

type createRollRequest struct {
	Caller            string `json:"caller"`
	TakerID           uint64 `json:"takerId"`
	FeeAmount         string `json:"feeAmount"`
	FeeDeltaFactorBps int64  `json:"feeDeltaFactorBps"`
	MinPrice          string `json:"minPrice"`
	MaxPrice          string `json:"maxPrice"`
	MinToProvider     string `json:"minToProvider"`
	Deadline          int64  `json:"deadline"`
}

func (s *Server) CreateRollOffer(w http.ResponseWriter, r *http.Request) {
	var req createRollRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	feeAmount, err := parseAmount(req.FeeAmount, true)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	minPrice, err := parseAmount(req.MinPrice, false)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	maxPrice, err := parseAmount(req.MaxPrice, false)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	minToProvider, err := parseAmount(req.MinToProvider, true)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	offer, err := s.rolls.CreateRollOffer(caller, req.TakerID, feeAmount, req.FeeDeltaFactorBps, minPrice, maxPrice, minToProvider, req.Deadline)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, offer)
}

func (s *Server) GetRollOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	offer, err := s.rolls.Offer(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, offer)
}

func (s *Server) RollFee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	price, err := parseAmount(r.URL.Query().Get("price"), false)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	offer, err := s.rolls.Offer(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	fee := collar.CalculateFee(offer, price)
	s.writeJSON(w, http.StatusOK, map[string]string{"fee": fee.String()})
}

func (s *Server) RollPreview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	price, err := parseAmount(r.URL.Query().Get("price"), false)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	offer, err := s.rolls.Offer(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	fee := collar.CalculateFee(offer, price)
	preview, err := s.rolls.PreviewTransferAmounts(offer.TakerID, price, fee)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, preview)
}

func (s *Server) CancelRollOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	caller, ok := s.callerFromBody(w, r)
	if !ok {
		return
	}
	if err := s.rolls.CancelRollOffer(caller, id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type executeRollRequest struct {
	Caller     string `json:"caller"`
	MinToTaker string `json:"minToTaker"`
}

func (s *Server) ExecuteRoll(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req executeRollRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	minToTaker, err := parseAmount(req.MinToTaker, true)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	result, err := s.rolls.ExecuteRoll(caller, id, minToTaker)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	balance, err := collar.AccountBalance(s.state, addr)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"address": addr.String(),
		"balance": balance.String(),
	})
}

func (s *Server) NextIDs(w http.ResponseWriter, r *http.Request) {
	offers, providers, takers, rolls, err := s.state.NextIDs()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{
		"offers":    offers,
		"providers": providers,
		"takers":    takers,
		"rolls":     rolls,
	})
}

func (s *Server) ListOffers(w http.ResponseWriter, r *http.Request) {
	provider, err := parseAddress(r.URL.Query().Get("provider"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	offers, err := s.state.OffersByProvider(provider)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if offers == nil {
		offers = []*collar.LiquidityOffer{}
	}
	s.writeJSON(w, http.StatusOK, offers)
}

func (s *Server) ListProviderPositions(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(r.URL.Query().Get("owner"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	positions, err := s.state.ProvidersByOwner(owner)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if positions == nil {
		positions = []*collar.ProviderPosition{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) ListTakerPositions(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(r.URL.Query().Get("owner"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	positions, err := s.state.TakersByOwner(owner)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if positions == nil {
		positions = []*collar.TakerPosition{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}
