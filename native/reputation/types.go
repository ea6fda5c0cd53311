package reputation

import (
	"fmt"
	"math/big"
	"strings"

	"trustlend/crypto"
)

const (
	// MaxScore is the upper bound of the reputation scale.
	MaxScore uint64 = 1000
	// InitialScore is assigned to freshly minted records.
	InitialScore uint64 = 100

	silverThreshold   uint64 = 200
	goldThreshold     uint64 = 500
	platinumThreshold uint64 = 800
	diamondThreshold  uint64 = 950
)

// Tier is the derived reputation band. The ordinal values are part of the
// external contract and must not be reordered.
type Tier uint8

const (
	TierBronze   Tier = 0
	TierSilver   Tier = 1
	TierGold     Tier = 2
	TierPlatinum Tier = 3
	TierDiamond  Tier = 4
)

var tierNames = [...]string{"bronze", "silver", "gold", "platinum", "diamond"}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// MarshalText renders the tier name for JSON payloads.
func (t Tier) MarshalText() ([]byte, error) {
	if int(t) >= len(tierNames) {
		return nil, fmt.Errorf("reputation: invalid tier %d", uint8(t))
	}
	return []byte(tierNames[t]), nil
}

// UnmarshalText parses a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, candidate := range tierNames {
		if candidate == name {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("reputation: unknown tier %q", name)
}

// TierForScore maps a score onto its tier. Scores above MaxScore saturate to
// Diamond.
func TierForScore(score uint64) Tier {
	switch {
	case score >= diamondThreshold:
		return TierDiamond
	case score >= platinumThreshold:
		return TierPlatinum
	case score >= goldThreshold:
		return TierGold
	case score >= silverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// Record is the soulbound reputation state of one account.
type Record struct {
	TokenID        uint64
	Account        crypto.Address
	Score          uint64
	LoansCompleted uint64
	TotalBorrowed  *big.Int
	TotalRepaid    *big.Int
	MintedAt       uint64
	LastUpdated    uint64
}

// Tier derives the record's tier from its score.
func (r *Record) Tier() Tier {
	if r == nil {
		return TierBronze
	}
	return TierForScore(r.Score)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.TotalBorrowed = cloneAmount(r.TotalBorrowed)
	clone.TotalRepaid = cloneAmount(r.TotalRepaid)
	return &clone
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// applyDelta adds delta to score, saturating at 0 and MaxScore.
func applyDelta(score uint64, delta int64) uint64 {
	if score > MaxScore {
		score = MaxScore
	}
	if delta >= 0 {
		if uint64(delta) >= MaxScore-score {
			return MaxScore
		}
		return score + uint64(delta)
	}
	magnitude := uint64(-(delta + 1)) + 1
	if magnitude >= score {
		return 0
	}
	return score - magnitude
}
