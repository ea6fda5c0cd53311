package exports

import (
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"trustlend/native/lending"
)

type loanRow struct {
	LoanID       int64  `parquet:"name=loan_id, type=INT64"`
	Borrower     string `parquet:"name=borrower, type=BYTE_ARRAY, convertedtype=UTF8"`
	Principal    string `parquet:"name=principal, type=BYTE_ARRAY, convertedtype=UTF8"`
	RateBps      int64  `parquet:"name=rate_bps, type=INT64"`
	StartTime    int64  `parquet:"name=start_time, type=INT64"`
	DueTime      int64  `parquet:"name=due_time, type=INT64"`
	TotalOwed    string `parquet:"name=total_owed, type=BYTE_ARRAY, convertedtype=UTF8"`
	AmountRepaid string `parquet:"name=amount_repaid, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status       string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WriteLoansParquet streams the loans to w as a snappy-compressed parquet file.
func WriteLoansParquet(w io.Writer, loans []*lending.Loan) error {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(loanRow), 1)
	if err != nil {
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, loan := range loans {
		if loan == nil {
			continue
		}
		row := &loanRow{
			LoanID:       int64(loan.ID),
			Borrower:     loan.Borrower.String(),
			Principal:    amountString(loan.Principal),
			RateBps:      int64(loan.InterestRateBps),
			StartTime:    int64(loan.StartTime),
			DueTime:      int64(loan.DueTime()),
			TotalOwed:    loan.TotalOwed().String(),
			AmountRepaid: amountString(loan.AmountRepaid),
			Status:       loan.Status().String(),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	return nil
}
