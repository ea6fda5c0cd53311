package bank

import (
	"encoding/hex"
	"strconv"

	"trustlend/core/types"
)

const TypePayoutRecorded = "bank.payout.recorded"

type PayoutRecorded struct {
	Payout Payout
}

func (PayoutRecorded) EventType() string { return TypePayoutRecorded }

func (e PayoutRecorded) Event() *types.Event {
	amount := "0"
	if e.Payout.Amount != nil {
		amount = e.Payout.Amount.String()
	}
	return &types.Event{
		Type: TypePayoutRecorded,
		Attributes: map[string]string{
			"reference": "0x" + hex.EncodeToString(e.Payout.Reference[:]),
			"to":        e.Payout.To.String(),
			"amount":    amount,
			"timestamp": strconv.FormatUint(e.Payout.Timestamp, 10),
		},
	}
}
