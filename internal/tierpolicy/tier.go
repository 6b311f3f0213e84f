package tierpolicy

import "fmt"

type Tier string

const (
	TierFree      Tier = "free"
	TierBasic     Tier = "basic"
	TierPremium   Tier = "premium"
	TierUnlimited Tier = "unlimited"
)

// Ordering is carried by an explicit rank table, not by comparing the
// string values, so the representation can change without breaking it.
var tierRanks = map[Tier]int{
	TierFree:      0,
	TierBasic:     1,
	TierPremium:   2,
	TierUnlimited: 3,
}

// Tiers in ascending capability order
var AllTiers = []Tier{TierFree, TierBasic, TierPremium, TierUnlimited}

// Rank returns the tier's position in the capability ordering.
// An unknown tier is a programming error, not a user input error.
func (t Tier) Rank() int {
	rank, ok := tierRanks[t]
	if !ok {
		panic(fmt.Sprintf("tierpolicy: unknown tier %q", t))
	}
	return rank
}

func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// ParseTier validates user-supplied tier names (e.g. subscription updates)
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid subscription tier: %q", s)
	}
	return t, nil
}
