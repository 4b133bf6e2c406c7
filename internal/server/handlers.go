// internal/server/handlers.go
package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/givecurve/givecurve/internal/community"
	"github.com/givecurve/givecurve/internal/events"
	"github.com/givecurve/givecurve/internal/ledger"
	"github.com/givecurve/givecurve/internal/metrics"
	"github.com/givecurve/givecurve/internal/types"
)

type communitySummary struct {
	Name            string   `json:"name"`
	TokenName       string   `json:"token_name"`
	TokenSymbol     string   `json:"token_symbol"`
	TotalSupply     string   `json:"total_supply"`
	Reserve         string   `json:"reserve"`
	BuyFormula      string   `json:"buy_formula"`
	SellFormula     string   `json:"sell_formula"`
	CharitySum      string   `json:"charity_sum"`
	CharityBalance  string   `json:"charity_balance"`
	Signers         []string `json:"signers"`
}

func summarize(c *community.Community) communitySummary {
	bonding := c.BondingVault()
	charity := c.CharityVault()
	signers := c.Signers()
	names := make([]string, len(signers))
	for i, s := range signers {
		names[i] = string(s)
	}
	return communitySummary{
		Name:           c.Name(),
		TokenName:      bonding.Token().Name(),
		TokenSymbol:    bonding.Token().Symbol(),
		TotalSupply:    bonding.Token().TotalSupply().Dec(),
		Reserve:        bonding.Reserve().Dec(),
		BuyFormula:     bonding.BuyFormulaKind(),
		SellFormula:    bonding.SellFormulaKind(),
		CharitySum:     charity.SumStats().Dec(),
		CharityBalance: charity.StableBalance().Dec(),
		Signers:        names,
	}
}

func (s *Server) handleListCommunities(w http.ResponseWriter, _ *http.Request) {
	communities := s.registry.Communities()
	out := make([]communitySummary, len(communities))
	for i, c := range communities {
		out[i] = summarize(c)
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleGetCommunity(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	s.respond(w, http.StatusOK, summarize(c))
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	var req struct {
		Donor  string `json:"donor"`
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var receipt *community.DonationReceipt
	err = metrics.MeasureOperation("donate", func() error {
		var opErr error
		receipt, opErr = c.Donate(r.Context(), types.Address(req.Donor), amount)
		return opErr
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]string{
		"donor":         string(receipt.Donor),
		"raw_amount":    receipt.RawAmount.Dec(),
		"charity_share": receipt.CharityShare.Dec(),
		"reserve_share": receipt.ReserveShare.Dec(),
		"stable_amount": receipt.StableAmount.Dec(),
		"tokens_minted": receipt.TokensMinted.Dec(),
	})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	var req struct {
		Seller string `json:"seller"`
		Tokens string `json:"tokens"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	tokens, err := parseAmount(req.Tokens)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var out *uint256.Int
	err = metrics.MeasureOperation("sell", func() error {
		var opErr error
		out, opErr = c.Sell(r.Context(), types.Address(req.Seller), tokens)
		return opErr
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]string{
		"seller":       req.Seller,
		"tokens":       tokens.Dec(),
		"currency_out": out.Dec(),
	})
}

func (s *Server) handleQuoteBuy(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	caller := types.Address(r.URL.Query().Get("address"))

	tokens, err := c.MyBuy(caller, amount)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"amount": amount.Dec(),
		"tokens": tokens.Dec(),
	})
}

func (s *Server) handleQuoteSell(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	tokens, err := parseAmount(r.URL.Query().Get("tokens"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	holder := types.Address(r.URL.Query().Get("address"))

	out, err := c.ReturnForAddress(holder, tokens)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"tokens":       tokens.Dec(),
		"currency_out": out.Dec(),
	})
}

func (s *Server) handleCharityStats(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	charity := c.CharityVault()
	s.respond(w, http.StatusOK, map[string]string{
		"global_sum":     charity.SumStats().Dec(),
		"stable_balance": charity.StableBalance().Dec(),
	})
}

func (s *Server) handleCharityDonor(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	donor := types.Address(chi.URLParam(r, "donor"))
	s.respond(w, http.StatusOK, map[string]string{
		"donor":    string(donor),
		"deposits": c.CharityVault().DepositsOf(donor).Dec(),
	})
}

func (s *Server) handleDisburse(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	var req struct {
		Caller       string `json:"caller"`
		Amount       string `json:"amount"`
		Intermediary string `json:"intermediary"`
		MetadataRef  string `json:"metadata_ref"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	err = metrics.MeasureOperation("disburse", func() error {
		return c.PassToCharity(r.Context(), types.Address(req.Caller), amount,
			types.Address(req.Intermediary), req.MetadataRef)
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]string{
		"amount":       amount.Dec(),
		"intermediary": req.Intermediary,
	})
}

func (s *Server) handleAddSigner(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	var req struct {
		Caller string `json:"caller"`
		Signer string `json:"signer"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := c.AddSigner(r.Context(), types.Address(req.Caller), types.Address(req.Signer)); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]string{"signer": req.Signer})
}

func (s *Server) handleRemoveSigner(w http.ResponseWriter, r *http.Request) {
	c := s.community(w, r)
	if c == nil {
		return
	}
	var req struct {
		Caller string `json:"caller"`
		Signer string `json:"signer"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	caller := types.Address(req.Caller)
	signer := types.Address(req.Signer)
	var err error
	if signer == caller || req.Signer == "" {
		err = c.RenounceSigner(r.Context(), caller)
	} else {
		err = c.RemoveSigner(r.Context(), caller, signer)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"removed": req.Signer})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respond(w, http.StatusNotImplemented, map[string]string{"error": "audit ledger disabled"})
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > 1000 {
			s.respondError(w, r, errBadRequest)
			return
		}
		limit = n
	}

	var (
		records []ledger.Record
		err     error
	)
	if name := r.URL.Query().Get("community"); name != "" {
		records, err = s.ledger.ByCommunity(r.Context(), name, limit)
	} else if typ := r.URL.Query().Get("type"); typ != "" {
		records, err = s.ledger.ByType(r.Context(), events.EventType(typ), limit)
	} else {
		records, err = s.ledger.Recent(r.Context(), limit)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	s.respond(w, http.StatusOK, records)
}
