package server

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"trustlend/crypto"
	"trustlend/native/bank"
)

func (s *Server) actor(r *http.Request) crypto.Address {
	principal, _ := PrincipalFromContext(r.Context())
	return principal.Account
}

func (s *Server) getParams(w http.ResponseWriter, r *http.Request) {
	credit := s.engine.CreditParams()
	loans := s.engine.LendingParams()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"credit": map[string]interface{}{
			"baseRateBps":    credit.BaseRateBps,
			"minRateBps":     credit.MinRateBps,
			"brackets":       credit.Brackets,
			"maxBorrowLimit": amount(credit.MaxBorrowLimit),
		},
		"lending": map[string]interface{}{
			"minLoan":            amount(loans.MinLoan),
			"maxLoan":            amount(loans.MaxLoan),
			"minDurationDays":    loans.MinDurationDays,
			"maxDurationDays":    loans.MaxDurationDays,
			"gracePeriodSeconds": loans.GracePeriodSeconds,
		},
	})
}

func (s *Server) getTopAccounts(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			s.fail(w, r, badRequest("limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}
	records, err := s.engine.TopAccounts(limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]reputationView, len(records))
	for i, record := range records {
		out[i] = toReputationView(record)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": out})
}

func (s *Server) getReputation(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	record, err := s.engine.ReputationData(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReputationView(record))
}

func (s *Server) getCredit(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	score, err := s.engine.ReputationScore(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	trustScore, err := s.engine.TrustScore(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := s.engine.BorrowingLimit(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rate, err := s.engine.InterestRate(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creditView{
		Account:         account.String(),
		Score:           score,
		TrustScore:      trustScore,
		BorrowingLimit:  amount(limit),
		InterestRateBps: rate,
	})
}

func (s *Server) getUserCircles(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := s.engine.UserCircles(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"circles": ids})
}

func (s *Server) getBorrowerLoans(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := s.engine.BorrowerLoans(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": ids})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	balance, err := s.engine.Balance(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": account.String(), "balance": amount(balance)})
}

func (s *Server) getPayout(w http.ResponseWriter, r *http.Request) {
	ref, err := bank.ParseReference(chi.URLParam(r, "ref"))
	if err != nil {
		s.fail(w, r, badRequest(err.Error()))
		return
	}
	payout, err := s.engine.Payout(ref)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reference": "0x" + hex.EncodeToString(payout.Reference[:]),
		"to":        payout.To.String(),
		"amount":    amount(payout.Amount),
		"timestamp": payout.Timestamp,
	})
}

func (s *Server) getCircle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	circle, err := s.engine.Circle(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCircleView(circle))
}

func (s *Server) getVouches(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vouchers, err := s.engine.Vouches(id, account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vouchers": addressStrings(vouchers)})
}

func (s *Server) getInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	invited, err := s.engine.HasInvitation(id, account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"invited": invited})
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.engine.Loans()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := r.URL.Query().Get("status")
	out := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		if status != "" && loan.Status().String() != status {
			continue
		}
		out = append(out, toLoanView(loan))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": out})
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.engine.Loan(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanView(loan))
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.Pool()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolView(pool))
}

func (s *Server) getLender(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	lender, err := s.engine.Lender(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":         account.String(),
		"deposited":       amount(lender.Deposited),
		"lastDepositTime": lender.LastDepositTime,
	})
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	actor := s.actor(r)
	tokenID, err := s.engine.Mint(r.Context(), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"account": actor.String(), "tokenId": tokenID})
}

func (s *Server) createCircle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		MinReputation uint64 `json:"minReputation"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.engine.CreateCircle(r.Context(), s.actor(r), req.Name, req.MinReputation)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"circleId": id})
}

func (s *Server) inviteMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Invitee string `json:"invitee"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	invitee, err := parseAddress("invitee", req.Invitee)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.InviteMember(r.Context(), id, s.actor(r), invitee); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.AcceptInvitation(r.Context(), id, s.actor(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) vouch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Member string `json:"member"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	member, err := parseAddress("member", req.Member)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.VouchForMember(r.Context(), id, s.actor(r), member); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.Deposit(r.Context(), s.actor(r), value); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.Withdraw(r.Context(), s.actor(r), value); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount       string `json:"amount"`
		DurationDays uint64 `json:"durationDays"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.engine.Borrow(r.Context(), s.actor(r), value, req.DurationDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.engine.Loan(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanView(loan))
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.engine.Repay(r.Context(), id, s.actor(r), value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepayView(result))
}

func (s *Server) markDefaulted(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.MarkDefaulted(r.Context(), id, s.actor(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
