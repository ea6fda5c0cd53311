package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded  = errors.New("quota requests exceeded")
	ErrQuotaAmountCapExceeded = errors.New("quota amount cap exceeded")
	ErrQuotaCounterOverflow   = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount uint32
	Used     uint64
	EpochID  uint64
}

// Quota defines the per-address limits for a module interaction within one
// epoch. Amounts are expressed in whole units.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxAmountPerEpoch   uint64 `toml:"MaxAmountPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.EpochSeconds > 0 && (q.MaxRequestsPerEpoch > 0 || q.MaxAmountPerEpoch > 0)
}

// EpochAt maps a unix timestamp onto the quota epoch.
func (q Quota) EpochAt(ts int64) uint64 {
	if q.EpochSeconds == 0 || ts <= 0 {
		return 0
	}
	return uint64(ts) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and amount fit within the
// configured quota. The returned QuotaNow reflects the updated counters when
// the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addAmount uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addAmount > 0 {
		if next.Used > math.MaxUint64-addAmount {
			return prev, ErrQuotaCounterOverflow
		}
		next.Used += addAmount
	}
	if q.MaxAmountPerEpoch > 0 && next.Used > q.MaxAmountPerEpoch {
		return prev, ErrQuotaAmountCapExceeded
	}

	return next, nil
}
