package trust

import (
	"strconv"
	"strings"

	"trustlend/core/types"
	"trustlend/crypto"
)

const (
	TypeCircleCreated = "trust.circle.created"
	TypeMemberInvited = "trust.member.invited"
	TypeMemberJoined  = "trust.member.joined"
	TypeMemberVouched = "trust.member.vouched"
	TypeCircleSlashed = "trust.circle.slashed"
)

type CircleCreated struct {
	CircleID      uint64
	Creator       crypto.Address
	Name          string
	MinReputation uint64
}

func (CircleCreated) EventType() string { return TypeCircleCreated }

func (e CircleCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeCircleCreated,
		Attributes: map[string]string{
			"circle_id":      strconv.FormatUint(e.CircleID, 10),
			"creator":        e.Creator.String(),
			"name":           e.Name,
			"min_reputation": strconv.FormatUint(e.MinReputation, 10),
		},
	}
}

type MemberInvited struct {
	CircleID uint64
	Inviter  crypto.Address
	Invitee  crypto.Address
}

func (MemberInvited) EventType() string { return TypeMemberInvited }

func (e MemberInvited) Event() *types.Event {
	return &types.Event{
		Type: TypeMemberInvited,
		Attributes: map[string]string{
			"circle_id": strconv.FormatUint(e.CircleID, 10),
			"inviter":   e.Inviter.String(),
			"invitee":   e.Invitee.String(),
		},
	}
}

type MemberJoined struct {
	CircleID uint64
	Account  crypto.Address
}

func (MemberJoined) EventType() string { return TypeMemberJoined }

func (e MemberJoined) Event() *types.Event {
	return &types.Event{
		Type: TypeMemberJoined,
		Attributes: map[string]string{
			"circle_id": strconv.FormatUint(e.CircleID, 10),
			"account":   e.Account.String(),
		},
	}
}

// MemberVouched reports a new vouch and whether it triggered the bonus.
type MemberVouched struct {
	CircleID uint64
	Voucher  crypto.Address
	Member   crypto.Address
	Vouches  uint64
	Bonus    bool
}

func (MemberVouched) EventType() string { return TypeMemberVouched }

func (e MemberVouched) Event() *types.Event {
	return &types.Event{
		Type: TypeMemberVouched,
		Attributes: map[string]string{
			"circle_id": strconv.FormatUint(e.CircleID, 10),
			"voucher":   e.Voucher.String(),
			"member":    e.Member.String(),
			"vouches":   strconv.FormatUint(e.Vouches, 10),
			"bonus":     strconv.FormatBool(e.Bonus),
		},
	}
}

type CircleSlashed struct {
	CircleID         uint64
	Defaulter        crypto.Address
	Vouchers         []crypto.Address
	DefaulterPenalty int64
	VoucherPenalty   int64
}

func (CircleSlashed) EventType() string { return TypeCircleSlashed }

func (e CircleSlashed) Event() *types.Event {
	vouchers := make([]string, 0, len(e.Vouchers))
	for _, v := range e.Vouchers {
		vouchers = append(vouchers, v.String())
	}
	return &types.Event{
		Type: TypeCircleSlashed,
		Attributes: map[string]string{
			"circle_id":         strconv.FormatUint(e.CircleID, 10),
			"defaulter":         e.Defaulter.String(),
			"vouchers":          strings.Join(vouchers, ","),
			"defaulter_penalty": strconv.FormatInt(e.DefaulterPenalty, 10),
			"voucher_penalty":   strconv.FormatInt(e.VoucherPenalty, 10),
		},
	}
}
