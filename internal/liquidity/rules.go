package liquidity

import (
	"fmt"
	"sort"

	"dutch-gokeeper/internal/fraction"
)

// Rule maps an observed auction/reference price ratio to how much of
// the sell volume the keeper wants bought at that ratio.
type Rule struct {
	// MarketPriceRatio is the threshold: the rule applies once the
	// auction price has decayed to this multiple of the reference
	// price (or below it).
	MarketPriceRatio fraction.Fraction

	// TargetBuyRatio is the fraction of the sell volume (in buy-token
	// terms) that should be bought when the rule applies.
	TargetBuyRatio fraction.Fraction
}

// prepareRules validates the table and sorts it descending by target
// so a scan returns the highest matching target. Sorting happens once
// at construction, never per evaluation.
func prepareRules(rules []Rule) ([]Rule, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("liquidity: at least one buy rule required")
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	for i, r := range out {
		if !r.MarketPriceRatio.Determined() || !r.TargetBuyRatio.Determined() {
			return nil, fmt.Errorf("liquidity: rule %d has an undetermined fraction", i)
		}
		if r.MarketPriceRatio.Num.Sign() < 0 || r.TargetBuyRatio.Num.Sign() < 0 {
			return nil, fmt.Errorf("liquidity: rule %d has a negative fraction", i)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TargetBuyRatio.Cmp(out[j].TargetBuyRatio) > 0
	})
	return out, nil
}

// matchRule returns the first rule whose threshold is at or below the
// observed ratio. ok is false when no rule applies.
func matchRule(rules []Rule, ratio fraction.Fraction) (Rule, bool) {
	for _, r := range rules {
		if r.MarketPriceRatio.Cmp(ratio) <= 0 {
			return r, true
		}
	}
	return Rule{}, false
}
