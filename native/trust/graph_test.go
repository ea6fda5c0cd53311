package trust

import (
	"errors"
	"strings"
	"testing"

	"trustlend/core/state"
	"trustlend/crypto"
	"trustlend/native/access"
	"trustlend/native/reputation"
	"trustlend/storage"
)

const day = int64(86_400)

var (
	owner     = testAddr(1)
	trustSelf = testAddr(2)
	slasher   = testAddr(3)
	creator   = testAddr(10)
	member1   = testAddr(11)
	member2   = testAddr(12)
	member3   = testAddr(13)
	outsider  = testAddr(14)
)

func testAddr(b byte) crypto.Address {
	var a crypto.Address
	a[0] = 0x7e
	a[19] = b
	return a
}

type fixture struct {
	graph *Graph
	rep   *reputation.Store
	now   int64
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	ctrl := access.NewController(mgr)
	if err := ctrl.Bootstrap(owner); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, grant := range []struct {
		cap     access.Capability
		account crypto.Address
	}{
		{access.CapReputationUpdater, owner},
		{access.CapReputationUpdater, trustSelf},
		{access.CapSlasher, slasher},
	} {
		if err := ctrl.Grant(owner, grant.cap, grant.account); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}
	f := &fixture{now: 1_700_000_000}
	f.rep = reputation.NewStore(mgr, ctrl)
	f.rep.SetNowFunc(func() int64 { return f.now })
	f.graph = NewGraph(mgr, f.rep, ctrl, trustSelf, params)
	f.graph.SetNowFunc(func() int64 { return f.now })
	return f
}

func (f *fixture) mintWithScore(t *testing.T, account crypto.Address, score uint64) {
	t.Helper()
	if _, err := f.rep.Mint(account); err != nil {
		t.Fatalf("mint %s: %v", account, err)
	}
	delta := int64(score) - int64(reputation.InitialScore)
	if err := f.rep.ApplyDelta(owner, account, delta); err != nil {
		t.Fatalf("seed score: %v", err)
	}
}

func (f *fixture) score(t *testing.T, account crypto.Address) uint64 {
	t.Helper()
	score, err := f.rep.Score(account)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	return score
}

func (f *fixture) join(t *testing.T, circleID uint64, account crypto.Address) {
	t.Helper()
	if err := f.graph.InviteMember(circleID, creator, account); err != nil {
		t.Fatalf("invite %s: %v", account, err)
	}
	if err := f.graph.AcceptInvitation(circleID, account); err != nil {
		t.Fatalf("accept %s: %v", account, err)
	}
}

func TestCreateCircleValidation(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.mintWithScore(t, creator, 250)
	f.mintWithScore(t, outsider, 199)

	if _, err := f.graph.CreateCircle(outsider, "weak", 0); !errors.Is(err, ErrInsufficientReputation) {
		t.Fatalf("expected ErrInsufficientReputation, got %v", err)
	}
	if _, err := f.graph.CreateCircle(creator, "", 0); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName for empty name, got %v", err)
	}
	if _, err := f.graph.CreateCircle(creator, strings.Repeat("x", 51), 0); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName for long name, got %v", err)
	}
	if _, err := f.graph.CreateCircle(creator, "ok", 1001); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected ErrInvalidThreshold, got %v", err)
	}
	id, err := f.graph.CreateCircle(creator, strings.Repeat("x", 50), 1000)
	if err != nil {
		t.Fatalf("create circle: %v", err)
	}
	members, err := f.graph.Members(id)
	if err != nil || len(members) != 1 || members[0] != creator {
		t.Fatalf("unexpected members %v err=%v", members, err)
	}
	circles, err := f.graph.UserCircles(creator)
	if err != nil || len(circles) != 1 || circles[0] != id {
		t.Fatalf("unexpected user circles %v err=%v", circles, err)
	}
}

func TestInviteRules(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.mintWithScore(t, creator, 250)
	f.mintWithScore(t, member1, 40)
	f.mintWithScore(t, member2, 60)

	id, err := f.graph.CreateCircle(creator, "neighbours", 50)
	if err != nil {
		t.Fatalf("create circle: %v", err)
	}
	if err := f.graph.InviteMember(id, creator, member1); !errors.Is(err, ErrReputationTooLow) {
		t.Fatalf("expected ErrReputationTooLow, got %v", err)
	}
	if err := f.graph.InviteMember(id, outsider, member2); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if err := f.graph.InviteMember(id, creator, creator); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	if err := f.graph.InviteMember(id, creator, member2); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := f.graph.InviteMember(id, creator, member2); !errors.Is(err, ErrAlreadyInvited) {
		t.Fatalf("expected ErrAlreadyInvited, got %v", err)
	}
	if err := f.graph.InviteMember(99, creator, member2); !errors.Is(err, ErrCircleNotFound) {
		t.Fatalf("expected ErrCircleNotFound, got %v", err)
	}
}

func TestInviteRequiresReputationRecord(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.mintWithScore(t, creator, 250)
	id, err := f.graph.CreateCircle(creator, "open", 0)
	if err != nil {
		t.Fatalf("create circle: %v", err)
	}
	if err := f.graph.InviteMember(id, creator, outsider); !errors.Is(err, ErrNoReputation) {
		t.Fatalf("expected ErrNoReputation, got %v", err)
	}
	if ok, _ := f.graph.HasInvitation(id, outsider); ok {
		t.Fatalf("rejected invitee must not hold an invitation")
	}
	f.mintWithScore(t, outsider, 0)
	if err := f.graph.InviteMember(id, creator, outsider); err != nil {
		t.Fatalf("invite after mint: %v", err)
	}
}

func TestAcceptInvitationAwardsJoinBonus(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.mintWithScore(t, creator, 250)
	f.mintWithScore(t, member1, 100)

	id, _ := f.graph.CreateCircle(creator, "c", 0)
	if err := f.graph.AcceptInvitation(id, member1); !errors.Is(err, ErrNoInvitation) {
		t.Fatalf("expected ErrNoInvitation, got %v", err)
	}
	f.join(t, id, member1)
	if got := f.score(t, member1); got != 110 {
		t.Fatalf("expected join bonus to lift score to 110, got %d", got)
	}
	pending, err := f.graph.HasInvitation(id, member1)
	if err != nil || pending {
		t.Fatalf("invitation should be cleared, pending=%v err=%v", pending, err)
	}
	if err := f.graph.AcceptInvitation(id, member1); !errors.Is(err, ErrNoInvitation) {
		t.Fatalf("expected ErrNoInvitation on second accept, got %v", err)
	}
}

func TestCircleCapacity(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.mintWithScore(t, creator, 250)
	id, _ := f.graph.CreateCircle(creator, "big", 0)
	for i := 0; i < 14; i++ {
		account := testAddr(byte(100 + i))
		f.mintWithScore(t, account, 100)
		f.join(t, id, account)
	}
	members, _ := f.graph.Members(id)
	if len(members) != 15 {
		t.Fatalf("expected 15 members, got %d", len(members))
	}
	f.mintWithScore(t, outsider, 100)
	if err := f.graph.InviteMember(id, creator, outsider); !errors.Is(err, ErrCircleFull) {
		t.Fatalf("expected ErrCircleFull, got %v", err)
	}
}

func TestVouchRules(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.mintWithScore(t, creator, 250)
	f.mintWithScore(t, member1, 100)
	f.mintWithScore(t, outsider, 100)
	id, _ := f.graph.CreateCircle(creator, "c", 0)
	f.join(t, id, member1)

	if err := f.graph.VouchForMember(id, outsider, member1); !errors.Is(err, ErrVoucherNotMember) {
		t.Fatalf("expected ErrVoucherNotMember, got %v", err)
	}
	if err := f.graph.VouchForMember(id, creator, outsider); !errors.Is(err, ErrTargetNotMember) {
		t.Fatalf("expected ErrTargetNotMember, got %v", err)
	}
	if err := f.graph.VouchForMember(id, member1, member1); !errors.Is(err, ErrSelfVouch) {
		t.Fatalf("expected ErrSelfVouch, got %v", err)
	}
	if err := f.graph.VouchForMember(id, creator, member1); err != nil {
		t.Fatalf("vouch: %v", err)
	}
	if err := f.graph.VouchForMember(id, creator, member1); !errors.Is(err, ErrDuplicateVouch) {
		t.Fatalf("expected ErrDuplicateVouch, got %v", err)
	}
	vouches, err := f.graph.Vouches(id, member1)
	if err != nil || len(vouches) != 1 || vouches[0] != creator {
		t.Fatalf("unexpected vouches %v err=%v", vouches, err)
	}
}

func vouchBonusScenario(t *testing.T, params Params) uint64 {
	f := newFixture(t, params)
	f.mintWithScore(t, creator, 250)
	for _, account := range []crypto.Address{member1, member2, member3, outsider} {
		f.mintWithScore(t, account, 100)
	}
	id, _ := f.graph.CreateCircle(creator, "c", 0)
	for _, account := range []crypto.Address{member1, member2, member3, outsider} {
		f.join(t, id, account)
	}
	// outsider is now a member; three vouches land on it.
	for _, voucher := range []crypto.Address{creator, member1, member2} {
		if err := f.graph.VouchForMember(id, voucher, outsider); err != nil {
			t.Fatalf("vouch: %v", err)
		}
	}
	return f.score(t, outsider)
}

func TestVouchBonusAwardedOnceByDefault(t *testing.T) {
	// 100 minted + 10 join + 20 on the second vouch.
	if got := vouchBonusScenario(t, DefaultParams()); got != 130 {
		t.Fatalf("expected single vouch bonus (130), got %d", got)
	}
}

func TestVouchBonusRepeatsWhenConfigured(t *testing.T) {
	params := DefaultParams()
	params.RepeatVouchBonus = true
	// 100 minted + 10 join + 20 on the second and third vouches.
	if got := vouchBonusScenario(t, params); got != 150 {
		t.Fatalf("expected repeated vouch bonus (150), got %d", got)
	}
}

func TestTrustScore(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.mintWithScore(t, creator, 250)
	f.mintWithScore(t, member1, 100)
	f.mintWithScore(t, member2, 100)
	id, _ := f.graph.CreateCircle(creator, "c", 0)
	f.join(t, id, member1)
	f.join(t, id, member2)
	if err := f.graph.VouchForMember(id, member1, creator); err != nil {
		t.Fatalf("vouch: %v", err)
	}
	if err := f.graph.VouchForMember(id, member2, creator); err != nil {
		t.Fatalf("vouch: %v", err)
	}

	score, err := f.graph.TrustScore(creator)
	if err != nil {
		t.Fatalf("trust score: %v", err)
	}
	if score != 100 {
		t.Fatalf("expected 50 + 2*25 = 100, got %d", score)
	}

	f.now += 30 * day
	if score, _ = f.graph.TrustScore(creator); score != 100 {
		t.Fatalf("age bonus requires strictly more than 30 days, got %d", score)
	}
	f.now++
	if score, _ = f.graph.TrustScore(creator); score != 130 {
		t.Fatalf("expected mature circle bonus, got %d", score)
	}
	if score, _ = f.graph.TrustScore(outsider); score != 0 {
		t.Fatalf("expected zero trust without circles, got %d", score)
	}
}

func TestSlashCircle(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.mintWithScore(t, creator, 250)
	f.mintWithScore(t, member1, 300)
	f.mintWithScore(t, member2, 300)
	id, _ := f.graph.CreateCircle(creator, "c", 0)
	f.join(t, id, member1)
	f.join(t, id, member2)
	if err := f.graph.VouchForMember(id, creator, member1); err != nil {
		t.Fatalf("vouch: %v", err)
	}

	if err := f.graph.SlashCircle(id, member1, member2); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.graph.SlashCircle(id, outsider, slasher); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	before := map[crypto.Address]uint64{
		creator: f.score(t, creator),
		member1: f.score(t, member1),
		member2: f.score(t, member2),
	}
	if err := f.graph.SlashCircle(id, member1, slasher); err != nil {
		t.Fatalf("slash: %v", err)
	}
	if got := f.score(t, member1); got != before[member1]-150 {
		t.Fatalf("defaulter: expected %d, got %d", before[member1]-150, got)
	}
	if got := f.score(t, creator); got != before[creator]-30 {
		t.Fatalf("voucher: expected %d, got %d", before[creator]-30, got)
	}
	if got := f.score(t, member2); got != before[member2] {
		t.Fatalf("non-voucher must be untouched, got %d", got)
	}
	members, _ := f.graph.Members(id)
	if len(members) != 3 {
		t.Fatalf("slashing must not remove members: %v", members)
	}
}

func TestCircleNotFoundQueries(t *testing.T) {
	f := newFixture(t, DefaultParams())
	if _, err := f.graph.Circle(7); !errors.Is(err, ErrCircleNotFound) {
		t.Fatalf("expected ErrCircleNotFound, got %v", err)
	}
	if _, err := f.graph.Vouches(7, creator); !errors.Is(err, ErrCircleNotFound) {
		t.Fatalf("expected ErrCircleNotFound, got %v", err)
	}
}
