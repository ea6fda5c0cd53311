package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"trustlend/native/lending"
)

// LoansJSONL renders one JSON object per loan. Amounts are decimal strings so
// consumers without arbitrary precision integers do not truncate them.
func LoansJSONL(loans []*lending.Loan) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, loan := range loans {
		if loan == nil {
			continue
		}
		payload := map[string]interface{}{
			"loanId":       loan.ID,
			"borrower":     loan.Borrower.String(),
			"principal":    amountString(loan.Principal),
			"rateBps":      loan.InterestRateBps,
			"startTime":    unixString(loan.StartTime),
			"dueTime":      unixString(loan.DueTime()),
			"totalOwed":    loan.TotalOwed().String(),
			"amountRepaid": amountString(loan.AmountRepaid),
			"status":       loan.Status().String(),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
