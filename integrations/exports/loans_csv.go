package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"

	"trustlend/native/lending"
)

var loanHeader = []string{
	"loan_id", "borrower", "principal", "rate_bps", "start_time", "due_time",
	"total_owed", "amount_repaid", "status",
}

// LoansCSV builds a CSV export of the supplied loans and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func LoansCSV(loans []*lending.Loan) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(loanHeader); err != nil {
		return nil, "", err
	}
	for _, loan := range loans {
		if loan == nil {
			continue
		}
		record := []string{
			strconv.FormatUint(loan.ID, 10),
			loan.Borrower.String(),
			amountString(loan.Principal),
			strconv.FormatUint(loan.InterestRateBps, 10),
			unixString(loan.StartTime),
			unixString(loan.DueTime()),
			loan.TotalOwed().String(),
			amountString(loan.AmountRepaid),
			loan.Status().String(),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func unixString(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}
