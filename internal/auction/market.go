package auction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Market is an unordered pair of auction tokens. TokenA/TokenB keep the
// caller's orientation; Key collapses both orientations to one identity.
type Market struct {
	TokenA common.Address
	TokenB common.Address
}

// NewMarket returns a market for the two tokens. The tokens must differ
// and be non-zero.
func NewMarket(a, b common.Address) (Market, error) {
	if (a == common.Address{}) || (b == common.Address{}) {
		return Market{}, fmt.Errorf("market requires two token addresses")
	}
	if a == b {
		return Market{}, fmt.Errorf("market tokens must differ: %s", a.Hex())
	}
	return Market{TokenA: a, TokenB: b}, nil
}

// Key returns the normalized lock key: token addresses in lexicographic
// order, so A-B and B-A name the same market.
func (m Market) Key() string {
	lo, hi := m.TokenA, m.TokenB
	if bytes.Compare(hi.Bytes(), lo.Bytes()) < 0 {
		lo, hi = hi, lo
	}
	return strings.ToLower(lo.Hex() + "-" + hi.Hex())
}

// Reverse returns the market with the token orientation flipped.
func (m Market) Reverse() Market {
	return Market{TokenA: m.TokenB, TokenB: m.TokenA}
}

func (m Market) String() string {
	return m.TokenA.Hex() + "/" + m.TokenB.Hex()
}
