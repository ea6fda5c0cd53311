package reputation

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"trustlend/core/events"
	"trustlend/core/state"
	"trustlend/crypto"
	"trustlend/native/access"
	nativecommon "trustlend/native/common"
	"trustlend/storage"
)

var (
	owner   = addrFor(1)
	updater = addrFor(2)
	alice   = addrFor(10)
	bob     = addrFor(11)
)

func addrFor(b byte) crypto.Address {
	var a crypto.Address
	a[0] = 0xaa
	a[19] = b
	return a
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

func newTestStore(t *testing.T) (*Store, *recordingEmitter) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	ctrl := access.NewController(mgr)
	if err := ctrl.Bootstrap(owner); err != nil {
		t.Fatalf("bootstrap owner: %v", err)
	}
	store := NewStore(mgr, ctrl)
	if err := store.SetAuthorizedUpdater(owner, updater, true); err != nil {
		t.Fatalf("grant updater: %v", err)
	}
	emitter := &recordingEmitter{}
	store.SetEmitter(emitter)
	store.SetNowFunc(func() int64 { return 1_700_000_000 })
	return store, emitter
}

func TestMintOnce(t *testing.T) {
	store, emitter := newTestStore(t)

	id, err := store.Mint(alice)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first token id 1, got %d", id)
	}
	record, err := store.Record(alice)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Score != InitialScore || record.Tier() != TierBronze {
		t.Fatalf("unexpected initial record: score=%d tier=%s", record.Score, record.Tier())
	}
	if record.MintedAt != 1_700_000_000 {
		t.Fatalf("unexpected mint time %d", record.MintedAt)
	}
	if _, err := store.Mint(alice); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	second, err := store.Mint(bob)
	if err != nil || second != 2 {
		t.Fatalf("second mint: id=%d err=%v", second, err)
	}
	if len(emitter.events) != 2 || emitter.events[0].EventType() != TypeMinted {
		t.Fatalf("unexpected events: %+v", emitter.events)
	}
	accounts, err := store.Accounts()
	if err != nil || len(accounts) != 2 || accounts[0] != alice {
		t.Fatalf("unexpected account index %v err=%v", accounts, err)
	}
}

func TestMintRejectedWhilePaused(t *testing.T) {
	store, _ := newTestStore(t)
	store.SetPauses(nativecommon.NewPauseTable(map[string]bool{moduleName: true}))
	if _, err := store.Mint(alice); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
}

func TestApplyDeltaClampsAndRecomputesTier(t *testing.T) {
	store, emitter := newTestStore(t)
	if _, err := store.Mint(alice); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := store.ApplyDelta(updater, alice, 450); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	score, _ := store.Score(alice)
	if score != 550 {
		t.Fatalf("expected 550, got %d", score)
	}
	last := emitter.events[len(emitter.events)-1].(Updated)
	if last.Tier != TierGold || last.Previous != 100 || last.Delta != 450 {
		t.Fatalf("unexpected update event %+v", last)
	}

	if err := store.ApplyDelta(updater, alice, 10_000); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if score, _ = store.Score(alice); score != MaxScore {
		t.Fatalf("expected clamp to %d, got %d", MaxScore, score)
	}
	if err := store.ApplyDelta(updater, alice, math.MinInt64); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if score, _ = store.Score(alice); score != 0 {
		t.Fatalf("expected clamp to 0, got %d", score)
	}
}

func TestApplyDeltaAuthorization(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Mint(alice); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := store.ApplyDelta(bob, alice, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := store.ApplyDelta(updater, bob, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SetAuthorizedUpdater(bob, bob, true); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("expected owner-only updater management, got %v", err)
	}
	if err := store.SetAuthorizedUpdater(owner, updater, false); err != nil {
		t.Fatalf("revoke updater: %v", err)
	}
	if err := store.ApplyDelta(updater, alice, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked updater to fail, got %v", err)
	}
}

func TestRecordLoanOutcome(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Mint(alice); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := store.RecordLoanOutcome(updater, alice, big.NewInt(500), big.NewInt(510)); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if err := store.RecordLoanOutcome(updater, alice, big.NewInt(100), big.NewInt(101)); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	record, err := store.Record(alice)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.LoansCompleted != 2 {
		t.Fatalf("expected 2 completed loans, got %d", record.LoansCompleted)
	}
	if record.TotalBorrowed.Cmp(big.NewInt(600)) != 0 || record.TotalRepaid.Cmp(big.NewInt(611)) != 0 {
		t.Fatalf("unexpected totals borrowed=%s repaid=%s", record.TotalBorrowed, record.TotalRepaid)
	}
	if record.Score != InitialScore {
		t.Fatalf("loan outcome must not change score, got %d", record.Score)
	}
	if err := store.RecordLoanOutcome(updater, bob, big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.RecordLoanOutcome(bob, alice, big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestScoreOfUnknownAccountIsZero(t *testing.T) {
	store, _ := newTestStore(t)
	score, err := store.Score(bob)
	if err != nil || score != 0 {
		t.Fatalf("expected 0 score without error, got %d err=%v", score, err)
	}
	if _, err := store.Record(bob); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Transfer(alice, bob); !errors.Is(err, ErrSoulbound) {
		t.Fatalf("expected ErrSoulbound, got %v", err)
	}
}

func TestTierForScoreBoundaries(t *testing.T) {
	cases := []struct {
		score uint64
		tier  Tier
	}{
		{0, TierBronze},
		{199, TierBronze},
		{200, TierSilver},
		{499, TierSilver},
		{500, TierGold},
		{799, TierGold},
		{800, TierPlatinum},
		{949, TierPlatinum},
		{950, TierDiamond},
		{1000, TierDiamond},
		{5000, TierDiamond},
	}
	for _, tc := range cases {
		if got := TierForScore(tc.score); got != tc.tier {
			t.Fatalf("score %d: expected %s, got %s", tc.score, tc.tier, got)
		}
	}
	prev := TierForScore(0)
	for score := uint64(1); score <= MaxScore; score++ {
		next := TierForScore(score)
		if next < prev {
			t.Fatalf("tier decreased at score %d", score)
		}
		prev = next
	}
}

func TestTierText(t *testing.T) {
	text, err := TierPlatinum.MarshalText()
	if err != nil || string(text) != "platinum" {
		t.Fatalf("marshal tier: %s %v", text, err)
	}
	var parsed Tier
	if err := parsed.UnmarshalText([]byte(" Gold ")); err != nil || parsed != TierGold {
		t.Fatalf("unmarshal tier: %v %v", parsed, err)
	}
	if uint8(TierDiamond) != 4 || uint8(TierBronze) != 0 {
		t.Fatalf("tier ordinals changed")
	}
}
