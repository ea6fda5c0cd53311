package server

import (
	"errors"
	"fmt"
	"net/http"

	"trustlend/core/protocol"
	"trustlend/native/access"
	"trustlend/native/bank"
	nativecommon "trustlend/native/common"
	"trustlend/native/credit"
	"trustlend/native/lending"
	"trustlend/native/reputation"
	"trustlend/native/trust"
)

// apiError is the JSON error envelope returned by every handler.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorTable = []errorMapping{
	{reputation.ErrNotFound, http.StatusNotFound, "reputation_not_found"},
	{lending.ErrLoanNotFound, http.StatusNotFound, "loan_not_found"},
	{trust.ErrCircleNotFound, http.StatusNotFound, "circle_not_found"},
	{bank.ErrPayoutNotFound, http.StatusNotFound, "payout_not_found"},

	{access.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{reputation.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{trust.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{lending.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{lending.ErrWrongBorrower, http.StatusForbidden, "wrong_borrower"},

	{nativecommon.ErrModulePaused, http.StatusServiceUnavailable, "module_paused"},
	{lending.ErrTransferFailed, http.StatusBadGateway, "transfer_failed"},

	{nativecommon.ErrQuotaRequestsExceeded, http.StatusTooManyRequests, "quota_exceeded"},
	{nativecommon.ErrQuotaAmountCapExceeded, http.StatusTooManyRequests, "quota_exceeded"},

	{nativecommon.ErrReentrantCall, http.StatusConflict, "reentrant_call"},
	{reputation.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{reputation.ErrSoulbound, http.StatusConflict, "soulbound"},
	{trust.ErrAlreadyMember, http.StatusConflict, "already_member"},
	{trust.ErrAlreadyInvited, http.StatusConflict, "already_invited"},
	{trust.ErrDuplicateVouch, http.StatusConflict, "duplicate_vouch"},
	{trust.ErrCircleFull, http.StatusConflict, "circle_full"},
	{trust.ErrNotActive, http.StatusConflict, "circle_not_active"},
	{lending.ErrNotActive, http.StatusConflict, "loan_not_active"},
	{lending.ErrAlreadyDefaulted, http.StatusConflict, "already_defaulted"},
	{lending.ErrAlreadyRepaid, http.StatusConflict, "already_repaid"},
	{lending.ErrGracePeriodNotOver, http.StatusConflict, "grace_period_not_over"},

	{lending.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{lending.ErrInsufficientLiquidity, http.StatusUnprocessableEntity, "insufficient_liquidity"},
	{lending.ErrNoReputation, http.StatusUnprocessableEntity, "no_reputation"},
	{trust.ErrNoReputation, http.StatusUnprocessableEntity, "no_reputation"},
	{lending.ErrExceedsLimit, http.StatusUnprocessableEntity, "exceeds_limit"},
	{trust.ErrInsufficientReputation, http.StatusUnprocessableEntity, "insufficient_reputation"},
	{trust.ErrReputationTooLow, http.StatusUnprocessableEntity, "reputation_too_low"},
	{trust.ErrNoInvitation, http.StatusUnprocessableEntity, "no_invitation"},
	{trust.ErrNotAMember, http.StatusUnprocessableEntity, "not_a_member"},
	{trust.ErrVoucherNotMember, http.StatusUnprocessableEntity, "voucher_not_member"},
	{trust.ErrTargetNotMember, http.StatusUnprocessableEntity, "target_not_member"},
	{trust.ErrSelfVouch, http.StatusUnprocessableEntity, "self_vouch"},

	{lending.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{lending.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{lending.ErrZeroPayment, http.StatusBadRequest, "invalid_amount"},
	{reputation.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{credit.ErrAmountOverflow, http.StatusBadRequest, "invalid_amount"},
	{trust.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
	{trust.ErrInvalidThreshold, http.StatusBadRequest, "invalid_threshold"},
	{access.ErrZeroAddress, http.StatusBadRequest, "invalid_address"},
	{access.ErrUnknownCapability, http.StatusBadRequest, "unknown_capability"},
	{protocol.ErrUnknownModule, http.StatusBadRequest, "unknown_module"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", errBadRequest, msg)
}

// translateError maps a protocol error onto an HTTP status and a stable code.
// Unknown errors become 500 without leaking their message.
func translateError(err error) (int, apiError) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, apiError{Code: m.code, Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, apiError{Code: "internal", Message: "internal error"}
}
