package server

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"trustlend/crypto"
	"trustlend/native/lending"
	"trustlend/native/reputation"
	"trustlend/native/trust"
)

const maxBodyBytes = 1 << 16

type reputationView struct {
	Account        string `json:"account"`
	TokenID        uint64 `json:"tokenId"`
	Score          uint64 `json:"score"`
	Tier           string `json:"tier"`
	LoansCompleted uint64 `json:"loansCompleted"`
	TotalBorrowed  string `json:"totalBorrowed"`
	TotalRepaid    string `json:"totalRepaid"`
	MintedAt       uint64 `json:"mintedAt"`
	LastUpdated    uint64 `json:"lastUpdated"`
}

func toReputationView(r *reputation.Record) reputationView {
	return reputationView{
		Account:        r.Account.String(),
		TokenID:        r.TokenID,
		Score:          r.Score,
		Tier:           r.Tier().String(),
		LoansCompleted: r.LoansCompleted,
		TotalBorrowed:  amount(r.TotalBorrowed),
		TotalRepaid:    amount(r.TotalRepaid),
		MintedAt:       r.MintedAt,
		LastUpdated:    r.LastUpdated,
	}
}

type circleView struct {
	ID            uint64   `json:"id"`
	Name          string   `json:"name"`
	Creator       string   `json:"creator"`
	MinReputation uint64   `json:"minReputation"`
	CreatedAt     uint64   `json:"createdAt"`
	Active        bool     `json:"active"`
	Members       []string `json:"members"`
}

func toCircleView(c *trust.Circle) circleView {
	return circleView{
		ID:            c.ID,
		Name:          c.Name,
		Creator:       c.Creator.String(),
		MinReputation: c.MinReputation,
		CreatedAt:     c.CreatedAt,
		Active:        c.Active,
		Members:       addressStrings(c.Members),
	}
}

type loanView struct {
	ID                uint64 `json:"id"`
	Borrower          string `json:"borrower"`
	Principal         string `json:"principal"`
	InterestRateBps   uint64 `json:"interestRateBps"`
	StartTime         uint64 `json:"startTime"`
	Duration          uint64 `json:"duration"`
	DueTime           uint64 `json:"dueTime"`
	TotalOwed         string `json:"totalOwed"`
	AmountRepaid      string `json:"amountRepaid"`
	Remaining         string `json:"remaining"`
	PrincipalReleased string `json:"principalReleased"`
	Status            string `json:"status"`
}

func toLoanView(l *lending.Loan) loanView {
	return loanView{
		ID:                l.ID,
		Borrower:          l.Borrower.String(),
		Principal:         amount(l.Principal),
		InterestRateBps:   l.InterestRateBps,
		StartTime:         l.StartTime,
		Duration:          l.Duration,
		DueTime:           l.DueTime(),
		TotalOwed:         l.TotalOwed().String(),
		AmountRepaid:      amount(l.AmountRepaid),
		Remaining:         l.Remaining().String(),
		PrincipalReleased: amount(l.PrincipalReleased),
		Status:            l.Status().String(),
	}
}

type poolView struct {
	TotalLiquidity string `json:"totalLiquidity"`
	TotalBorrowed  string `json:"totalBorrowed"`
	Available      string `json:"available"`
	InterestEarned string `json:"interestEarned"`
	LoanCount      uint64 `json:"loanCount"`
}

func toPoolView(p *lending.Pool) poolView {
	count := uint64(0)
	if p.NextLoanID > 0 {
		count = p.NextLoanID - 1
	}
	return poolView{
		TotalLiquidity: amount(p.TotalLiquidity),
		TotalBorrowed:  amount(p.TotalBorrowed),
		Available:      p.Available().String(),
		InterestEarned: amount(p.InterestEarned),
		LoanCount:      count,
	}
}

type repayView struct {
	Applied   string `json:"applied"`
	Refunded  string `json:"refunded"`
	Remaining string `json:"remaining"`
	Completed bool   `json:"completed"`
	Early     bool   `json:"early"`
}

func toRepayView(r *lending.RepayResult) repayView {
	return repayView{
		Applied:   amount(r.Applied),
		Refunded:  amount(r.Refunded),
		Remaining: amount(r.Remaining),
		Completed: r.Completed,
		Early:     r.Early,
	}
}

type creditView struct {
	Account         string `json:"account"`
	Score           uint64 `json:"score"`
	TrustScore      uint64 `json:"trustScore"`
	BorrowingLimit  string `json:"borrowingLimit"`
	InterestRateBps uint64 `json:"interestRateBps"`
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressStrings(addrs []crypto.Address) []string {
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = addr.String()
	}
	return out
}

func parseAmount(field, raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a base-10 integer", errBadRequest, field)
	}
	return value, nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

func parseID(field, raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", errBadRequest, field)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, body apiError) {
	writeJSON(w, status, map[string]apiError{"error": body})
}
