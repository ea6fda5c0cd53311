package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustlend/native/access"
)

func (s *Server) getPauses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"pauses": s.engine.Pauses()})
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module string `json:"module"`
		Paused bool   `json:"paused"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.SetPaused(r.Context(), s.actor(r), req.Module, req.Paused); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("module pause toggled",
		"module", req.Module, "paused", req.Paused, "caller", s.actor(r).String())
	writeJSON(w, http.StatusOK, map[string]interface{}{"pauses": s.engine.Pauses()})
}

func (s *Server) setOwner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner string `json:"owner"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.SetOwner(r.Context(), s.actor(r), owner); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setCapability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Capability string `json:"capability"`
		Account    string `json:"account"`
		Granted    bool   `json:"granted"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	capability, err := access.ParseCapability(req.Capability)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Granted {
		err = s.engine.Grant(r.Context(), s.actor(r), capability, account)
	} else {
		err = s.engine.Revoke(r.Context(), s.actor(r), capability, account)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	members, err := s.engine.CapabilityMembers(capability)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capability": capability.String(),
		"members":    addressStrings(members),
	})
}

func (s *Server) setUpdater(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Allowed bool   `json:"allowed"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.SetAuthorizedUpdater(r.Context(), s.actor(r), account, req.Allowed); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyDelta(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Delta   int64  `json:"delta"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ApplyDelta(r.Context(), s.actor(r), account, req.Delta); err != nil {
		s.fail(w, r, err)
		return
	}
	score, err := s.engine.ReputationScore(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account.String(), "score": score})
}

func (s *Server) slashCircle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Defaulter string `json:"defaulter"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	defaulter, err := parseAddress("defaulter", req.Defaulter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.SlashCircle(r.Context(), s.actor(r), id, defaulter); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withdrawFees(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.WithdrawFees(r.Context(), s.actor(r), recipient, value); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
