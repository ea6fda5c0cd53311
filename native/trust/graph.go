package trust

import (
	"errors"
	"fmt"
	"time"

	"trustlend/core/events"
	"trustlend/crypto"
	"trustlend/native/access"
	nativecommon "trustlend/native/common"
)

var (
	ErrCircleNotFound         = errors.New("trust: circle not found")
	ErrInsufficientReputation = errors.New("trust: insufficient reputation to create a circle")
	ErrInvalidName            = errors.New("trust: invalid circle name")
	ErrInvalidThreshold       = errors.New("trust: invalid minimum reputation")
	ErrNotActive              = errors.New("trust: circle not active")
	ErrNotAMember             = errors.New("trust: account is not a member")
	ErrAlreadyMember          = errors.New("trust: account is already a member")
	ErrAlreadyInvited         = errors.New("trust: account already invited")
	ErrNoInvitation           = errors.New("trust: no pending invitation")
	ErrCircleFull             = errors.New("trust: circle is full")
	ErrReputationTooLow       = errors.New("trust: reputation below circle minimum")
	ErrVoucherNotMember       = errors.New("trust: voucher is not a member")
	ErrTargetNotMember        = errors.New("trust: vouch target is not a member")
	ErrSelfVouch              = errors.New("trust: cannot vouch for yourself")
	ErrDuplicateVouch         = errors.New("trust: already vouched for member")
	ErrUnauthorized           = errors.New("trust: caller is not the slashing authority")
	ErrNoReputation           = errors.New("trust: invitee holds no reputation record")
	errNilState               = errors.New("trust: state not configured")
)

const moduleName = "trust"

// ReputationPort is the subset of the reputation store the graph relies on.
type ReputationPort interface {
	Score(account crypto.Address) (uint64, error)
	Exists(account crypto.Address) (bool, error)
	ApplyDelta(caller, account crypto.Address, delta int64) error
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	nextCircleKey = []byte("trust/next-circle")
)

func circleKey(id uint64) []byte {
	return []byte(fmt.Sprintf("trust/circle/%d", id))
}

func vouchKey(id uint64, member crypto.Address) []byte {
	return []byte(fmt.Sprintf("trust/vouch/%d/%x", id, member[:]))
}

func inviteKey(id uint64, account crypto.Address) []byte {
	return []byte(fmt.Sprintf("trust/invite/%d/%x", id, account[:]))
}

func userCirclesKey(account crypto.Address) []byte {
	return []byte(fmt.Sprintf("trust/user/%x", account[:]))
}

// Graph owns circles, memberships, invitations and vouches. Reputation effects
// are posted through the ReputationPort using the graph's module address.
type Graph struct {
	state      engineState
	reputation ReputationPort
	auth       access.Authorizer
	self       crypto.Address
	params     Params
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() int64
}

// NewGraph constructs a trust graph. self is the address the graph uses when
// posting reputation deltas and must hold the updater capability.
func NewGraph(state engineState, reputation ReputationPort, auth access.Authorizer, self crypto.Address, params Params) *Graph {
	return &Graph{
		state:      state,
		reputation: reputation,
		auth:       auth,
		self:       self,
		params:     params,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

func (g *Graph) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	g.emitter = emitter
}

func (g *Graph) SetPauses(p nativecommon.PauseView) { g.pauses = p }

// SetNowFunc overrides the wall clock. Primarily used by tests.
func (g *Graph) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	g.nowFn = now
}

// Params returns the configured circle rules.
func (g *Graph) Params() Params { return g.params }

func (g *Graph) ready() error {
	if g == nil || g.state == nil || g.reputation == nil {
		return errNilState
	}
	return nil
}

func (g *Graph) loadCircle(id uint64) (*Circle, error) {
	var circle Circle
	ok, err := g.state.KVGet(circleKey(id), &circle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCircleNotFound
	}
	return &circle, nil
}

func (g *Graph) loadVouches(id uint64, member crypto.Address) ([]crypto.Address, error) {
	var vouchers []crypto.Address
	if _, err := g.state.KVGet(vouchKey(id, member), &vouchers); err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (g *Graph) addUserCircle(account crypto.Address, id uint64) error {
	var ids []uint64
	if _, err := g.state.KVGet(userCirclesKey(account), &ids); err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return g.state.KVPut(userCirclesKey(account), append(ids, id))
}

// CreateCircle registers a new circle with creator as its only member.
func (g *Graph) CreateCircle(creator crypto.Address, name string, minReputation uint64) (uint64, error) {
	if err := g.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return 0, err
	}
	score, err := g.reputation.Score(creator)
	if err != nil {
		return 0, err
	}
	if score < g.params.MinCreatorScore {
		return 0, ErrInsufficientReputation
	}
	if len(name) == 0 || len(name) > g.params.MaxNameLength {
		return 0, ErrInvalidName
	}
	if minReputation > g.params.MaxThreshold {
		return 0, ErrInvalidThreshold
	}

	var next uint64
	if _, err := g.state.KVGet(nextCircleKey, &next); err != nil {
		return 0, err
	}
	next++
	circle := &Circle{
		ID:            next,
		Name:          name,
		Creator:       creator,
		MinReputation: minReputation,
		CreatedAt:     uint64(g.nowFn()),
		Active:        true,
		Members:       []crypto.Address{creator},
	}
	if err := g.state.KVPut(circleKey(next), circle); err != nil {
		return 0, err
	}
	if err := g.state.KVPut(nextCircleKey, next); err != nil {
		return 0, err
	}
	if err := g.addUserCircle(creator, next); err != nil {
		return 0, err
	}
	g.emitter.Emit(CircleCreated{CircleID: next, Creator: creator, Name: name, MinReputation: minReputation})
	return next, nil
}

// InviteMember records a pending invitation issued by an existing member.
func (g *Graph) InviteMember(circleID uint64, inviter, invitee crypto.Address) error {
	if err := g.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return err
	}
	circle, err := g.loadCircle(circleID)
	if err != nil {
		return err
	}
	if !circle.Active {
		return ErrNotActive
	}
	if !circle.IsMember(inviter) {
		return ErrNotAMember
	}
	if circle.IsMember(invitee) {
		return ErrAlreadyMember
	}
	invited, err := g.state.KVGet(inviteKey(circleID, invitee), nil)
	if err != nil {
		return err
	}
	if invited {
		return ErrAlreadyInvited
	}
	if len(circle.Members) >= g.params.MaxMembers {
		return ErrCircleFull
	}
	minted, err := g.reputation.Exists(invitee)
	if err != nil {
		return err
	}
	if !minted {
		return ErrNoReputation
	}
	score, err := g.reputation.Score(invitee)
	if err != nil {
		return err
	}
	if score < circle.MinReputation {
		return ErrReputationTooLow
	}
	if err := g.state.KVPut(inviteKey(circleID, invitee), true); err != nil {
		return err
	}
	g.emitter.Emit(MemberInvited{CircleID: circleID, Inviter: inviter, Invitee: invitee})
	return nil
}

// AcceptInvitation turns a pending invitation into membership and awards the
// join bonus.
func (g *Graph) AcceptInvitation(circleID uint64, account crypto.Address) error {
	if err := g.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return err
	}
	circle, err := g.loadCircle(circleID)
	if err != nil {
		return err
	}
	if !circle.Active {
		return ErrNotActive
	}
	invited, err := g.state.KVGet(inviteKey(circleID, account), nil)
	if err != nil {
		return err
	}
	if !invited {
		return ErrNoInvitation
	}
	if circle.IsMember(account) {
		return ErrAlreadyMember
	}
	// Pending invitations may outnumber free seats.
	if len(circle.Members) >= g.params.MaxMembers {
		return ErrCircleFull
	}
	circle.Members = append(circle.Members, account)
	if err := g.state.KVPut(circleKey(circleID), circle); err != nil {
		return err
	}
	if err := g.state.KVDelete(inviteKey(circleID, account)); err != nil {
		return err
	}
	if err := g.addUserCircle(account, circleID); err != nil {
		return err
	}
	if err := g.reputation.ApplyDelta(g.self, account, g.params.JoinBonus); err != nil {
		return err
	}
	g.emitter.Emit(MemberJoined{CircleID: circleID, Account: account})
	return nil
}

// VouchForMember records voucher's endorsement of member. Reaching the vouch
// threshold awards the vouch bonus.
func (g *Graph) VouchForMember(circleID uint64, voucher, member crypto.Address) error {
	if err := g.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return err
	}
	circle, err := g.loadCircle(circleID)
	if err != nil {
		return err
	}
	if !circle.Active {
		return ErrNotActive
	}
	if !circle.IsMember(voucher) {
		return ErrVoucherNotMember
	}
	if !circle.IsMember(member) {
		return ErrTargetNotMember
	}
	if voucher == member {
		return ErrSelfVouch
	}
	vouchers, err := g.loadVouches(circleID, member)
	if err != nil {
		return err
	}
	for _, existing := range vouchers {
		if existing == voucher {
			return ErrDuplicateVouch
		}
	}
	vouchers = append(vouchers, voucher)
	if err := g.state.KVPut(vouchKey(circleID, member), vouchers); err != nil {
		return err
	}
	count := len(vouchers)
	bonus := count == g.params.VouchThreshold
	if g.params.RepeatVouchBonus {
		bonus = count >= g.params.VouchThreshold
	}
	if bonus {
		if err := g.reputation.ApplyDelta(g.self, member, g.params.VouchBonus); err != nil {
			return err
		}
	}
	g.emitter.Emit(MemberVouched{CircleID: circleID, Voucher: voucher, Member: member, Vouches: uint64(count), Bonus: bonus})
	return nil
}

// SlashCircle penalises a defaulter and everyone who vouched for them in the
// circle. Membership is left unchanged.
func (g *Graph) SlashCircle(circleID uint64, defaulter, caller crypto.Address) error {
	if err := g.ready(); err != nil {
		return err
	}
	if g.auth == nil {
		return errNilState
	}
	if err := g.auth.Authorize(access.CapSlasher, caller); err != nil {
		if errors.Is(err, access.ErrUnauthorized) {
			return ErrUnauthorized
		}
		return err
	}
	circle, err := g.loadCircle(circleID)
	if err != nil {
		return err
	}
	if !circle.IsMember(defaulter) {
		return ErrNotAMember
	}
	if err := g.reputation.ApplyDelta(g.self, defaulter, -g.params.DefaulterPenalty); err != nil {
		return err
	}
	vouchers, err := g.loadVouches(circleID, defaulter)
	if err != nil {
		return err
	}
	for _, voucher := range vouchers {
		if err := g.reputation.ApplyDelta(g.self, voucher, -g.params.VoucherPenalty); err != nil {
			return err
		}
	}
	g.emitter.Emit(CircleSlashed{
		CircleID:         circleID,
		Defaulter:        defaulter,
		Vouchers:         append([]crypto.Address(nil), vouchers...),
		DefaulterPenalty: g.params.DefaulterPenalty,
		VoucherPenalty:   g.params.VoucherPenalty,
	})
	return nil
}

// TrustScore derives the account's aggregate trust from its active circles.
// It is recomputed on each call.
func (g *Graph) TrustScore(account crypto.Address) (uint64, error) {
	if err := g.ready(); err != nil {
		return 0, err
	}
	ids, err := g.UserCircles(account)
	if err != nil {
		return 0, err
	}
	now := g.nowFn()
	var score uint64
	for _, id := range ids {
		circle, err := g.loadCircle(id)
		if err != nil {
			return 0, err
		}
		if !circle.Active {
			continue
		}
		score += g.params.CirclePoints
		vouchers, err := g.loadVouches(id, account)
		if err != nil {
			return 0, err
		}
		score += uint64(len(vouchers)) * g.params.VouchPoints
		if now-int64(circle.CreatedAt) > g.params.MatureAfterSeconds {
			score += g.params.MatureCirclePoints
		}
	}
	return score, nil
}

// Circle returns a copy of the circle record.
func (g *Graph) Circle(circleID uint64) (*Circle, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	return g.loadCircle(circleID)
}

// Members lists the circle's members in join order.
func (g *Graph) Members(circleID uint64) ([]crypto.Address, error) {
	circle, err := g.Circle(circleID)
	if err != nil {
		return nil, err
	}
	return circle.Members, nil
}

// Vouches lists the accounts that vouched for account in the circle.
func (g *Graph) Vouches(circleID uint64, account crypto.Address) ([]crypto.Address, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	if _, err := g.loadCircle(circleID); err != nil {
		return nil, err
	}
	vouchers, err := g.loadVouches(circleID, account)
	if err != nil {
		return nil, err
	}
	if vouchers == nil {
		vouchers = []crypto.Address{}
	}
	return vouchers, nil
}

// UserCircles lists the circles account belongs to.
func (g *Graph) UserCircles(account crypto.Address) ([]uint64, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	var ids []uint64
	if _, err := g.state.KVGet(userCirclesKey(account), &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// HasInvitation reports whether account holds a pending invitation.
func (g *Graph) HasInvitation(circleID uint64, account crypto.Address) (bool, error) {
	if err := g.ready(); err != nil {
		return false, err
	}
	return g.state.KVGet(inviteKey(circleID, account), nil)
}
