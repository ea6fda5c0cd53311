package exports

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"trustlend/crypto"
	"trustlend/native/lending"
)

func sampleLoan(id uint64, active bool) *lending.Loan {
	var raw [crypto.AddressLength]byte
	raw[19] = byte(id)
	return &lending.Loan{
		ID:                id,
		Borrower:          crypto.MustAddress(raw[:]),
		Principal:         big.NewInt(1_000_000),
		InterestRateBps:   500,
		StartTime:         1_700_000_000,
		Duration:          30 * 24 * 60 * 60,
		AmountRepaid:      big.NewInt(250),
		PrincipalReleased: big.NewInt(0),
		Active:            active,
	}
}

func TestLoansCSV(t *testing.T) {
	loans := []*lending.Loan{sampleLoan(1, true), nil, sampleLoan(2, false)}
	data, checksum, err := LoansCSV(loans)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(checksum) != 64 {
		t.Fatalf("unexpected checksum %q", checksum)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(loanHeader, ",") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], ",active") || !strings.Contains(lines[2], ",repaid") {
		t.Fatalf("missing status column: %v", lines[1:])
	}
	if !strings.Contains(lines[1], sampleLoan(1, true).TotalOwed().String()) {
		t.Fatalf("missing total owed: %s", lines[1])
	}
	again, sum, err := LoansCSV(loans)
	if err != nil || !bytes.Equal(again, data) || sum != checksum {
		t.Fatalf("export is not deterministic")
	}
}

func TestLoansJSONL(t *testing.T) {
	loan := sampleLoan(7, true)
	loan.Defaulted = true
	data, checksum, err := LoansJSONL([]*lending.Loan{loan})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	output := string(data)
	if !strings.Contains(output, "\"loanId\":7") {
		t.Fatalf("unexpected payload: %s", output)
	}
	if !strings.Contains(output, "\"status\":\"defaulted\"") {
		t.Fatalf("missing status: %s", output)
	}
	if !strings.Contains(output, "\"principal\":\"1000000\"") {
		t.Fatalf("principal should be a string: %s", output)
	}
	if !strings.Contains(output, loan.Borrower.String()) {
		t.Fatalf("missing borrower: %s", output)
	}
}

func TestWriteLoansParquet(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLoansParquet(&buf, []*lending.Loan{sampleLoan(1, true), sampleLoan(2, true)}); err != nil {
		t.Fatalf("parquet: %v", err)
	}
	data := buf.Bytes()
	if len(data) < 8 {
		t.Fatalf("parquet output too short: %d bytes", len(data))
	}
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatalf("missing parquet magic")
	}
}
