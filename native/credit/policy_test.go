package credit

import (
	"errors"
	"math/big"
	"testing"
)

func units(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), Unit) }

func TestInterestRateBrackets(t *testing.T) {
	policy := NewPolicy(DefaultParams())
	cases := []struct {
		score, trust uint64
		want         uint64
	}{
		{score: 0, trust: 0, want: 1000},
		{score: 199, trust: 0, want: 1000},
		{score: 200, trust: 0, want: 800},
		{score: 500, trust: 0, want: 500},
		{score: 799, trust: 0, want: 500},
		{score: 800, trust: 0, want: 300},
		{score: 500, trust: 99, want: 500},
		{score: 500, trust: 250, want: 460},
		{score: 100, trust: 1000, want: 800},
		{score: 100, trust: 5000, want: 800},
		{score: 1000, trust: 1000, want: 300},
		{score: 500, trust: 1000, want: 300},
	}
	for _, tc := range cases {
		if got := policy.InterestRateBps(tc.score, tc.trust); got != tc.want {
			t.Fatalf("rate(score=%d, trust=%d): expected %d, got %d", tc.score, tc.trust, tc.want, got)
		}
	}
}

func TestBorrowingLimit(t *testing.T) {
	policy := NewPolicy(DefaultParams())

	half := new(big.Int).Div(Unit, big.NewInt(2))
	if got := policy.BorrowingLimit(500, 0); got.Cmp(half) != 0 {
		t.Fatalf("expected 0.5 units, got %s", got)
	}
	// 1.0 unit base * 105%
	want := new(big.Int).Div(new(big.Int).Mul(Unit, big.NewInt(105)), big.NewInt(100))
	if got := policy.BorrowingLimit(1000, 50); got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got := policy.BorrowingLimit(1000, 5000); got.Cmp(units(2)) != 0 {
		t.Fatalf("multiplier must cap at 200%%, got %s", got)
	}
	if got := policy.BorrowingLimit(0, 5000); got.Sign() != 0 {
		t.Fatalf("zero score must yield zero limit, got %s", got)
	}

	params := DefaultParams()
	params.LimitPerPoint = new(big.Int).Div(Unit, big.NewInt(10))
	capped := NewPolicy(params)
	if got := capped.BorrowingLimit(1000, 0); got.Cmp(units(10)) != 0 {
		t.Fatalf("expected protocol cap of 10 units, got %s", got)
	}
}

func TestTotalOwed(t *testing.T) {
	principal := new(big.Int).Div(Unit, big.NewInt(10))
	got := TotalOwed(principal, 500, 30*SecondsPerDay)
	want, _ := new(big.Int).SetString("100410958904109589", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if TotalOwed(principal, 0, 30*SecondsPerDay).Cmp(principal) != 0 {
		t.Fatalf("zero rate must owe principal only")
	}
	if TotalOwed(nil, 500, 1).Sign() != 0 {
		t.Fatalf("nil principal must owe nothing")
	}
}

func TestParamsDefaultsAndValidation(t *testing.T) {
	var params Params
	params.EnsureDefaults()
	if err := params.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	bad := DefaultParams()
	bad.Brackets = []RateBracket{{MinScore: 200, RateBps: 800}, {MinScore: 500, RateBps: 500}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unordered brackets to fail")
	}
	bad = DefaultParams()
	bad.MinRateBps = 2000
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected min rate above base rate to fail")
	}
	clone := DefaultParams()
	copyParams := clone.Clone()
	copyParams.MaxBorrowLimit.SetInt64(1)
	if clone.MaxBorrowLimit.Cmp(units(10)) != 0 {
		t.Fatalf("clone must not alias big.Int fields")
	}
}

func TestCheckAmount(t *testing.T) {
	if err := CheckAmount(units(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := CheckAmount(huge); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := CheckAmount(big.NewInt(-1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected negative amount to fail, got %v", err)
	}
}
