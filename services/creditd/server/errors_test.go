package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	nativecommon "trustlend/native/common"
	"trustlend/native/credit"
	"trustlend/native/lending"
	"trustlend/native/trust"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{lending.ErrLoanNotFound, http.StatusNotFound, "loan_not_found"},
		{fmt.Errorf("borrow: %w", lending.ErrExceedsLimit), http.StatusUnprocessableEntity, "exceeds_limit"},
		{fmt.Errorf("lending: %w", nativecommon.ErrModulePaused), http.StatusServiceUnavailable, "module_paused"},
		{nativecommon.ErrQuotaRequestsExceeded, http.StatusTooManyRequests, "quota_exceeded"},
		{trust.ErrDuplicateVouch, http.StatusConflict, "duplicate_vouch"},
		{lending.ErrTransferFailed, http.StatusBadGateway, "transfer_failed"},
		{fmt.Errorf("lending: %w", nativecommon.ErrReentrantCall), http.StatusConflict, "reentrant_call"},
		{fmt.Errorf("borrow: %w", credit.ErrAmountOverflow), http.StatusBadRequest, "invalid_amount"},
		{trust.ErrNoReputation, http.StatusUnprocessableEntity, "no_reputation"},
		{badRequest("nope"), http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		status, body := translateError(tc.err)
		if status != tc.status || body.Code != tc.code {
			t.Fatalf("%v: got %d/%s, want %d/%s", tc.err, status, body.Code, tc.status, tc.code)
		}
	}
}

func TestTranslateErrorHidesInternalDetails(t *testing.T) {
	status, body := translateError(errors.New("leveldb: corrupted block at offset 42"))
	if status != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", status)
	}
	if body.Code != "internal" || body.Message != "internal error" {
		t.Fatalf("internal error leaked: %+v", body)
	}
}
