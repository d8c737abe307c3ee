package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// Auto is the sentinel that defers a gas value to the node.
const Auto = "auto"

// GasPolicy says how a transaction's gas price and limit are resolved.
// A nil Price or zero Limit means "auto".
type GasPolicy struct {
	Price *big.Int // wei
	Limit uint64
}

func (p GasPolicy) AutoPrice() bool { return p.Price == nil }
func (p GasPolicy) AutoLimit() bool { return p.Limit == 0 }

// ParseGasPolicy parses a gwei price ("auto" or a decimal such as "0.1") and a
// gas limit ("auto" or a positive integer).
func ParseGasPolicy(gwei, limit string) (GasPolicy, error) {
	var p GasPolicy

	gwei = strings.TrimSpace(gwei)
	if !strings.EqualFold(gwei, Auto) {
		wei, err := GweiToWei(gwei)
		if err != nil {
			return GasPolicy{}, err
		}
		p.Price = wei
	}

	limit = strings.TrimSpace(limit)
	if !strings.EqualFold(limit, Auto) {
		n, err := strconv.ParseUint(limit, 10, 64)
		if err != nil {
			// JSON numbers may arrive as "150000.0"
			f, ok := new(big.Rat).SetString(limit)
			if !ok || !f.IsInt() || f.Sign() < 0 {
				return GasPolicy{}, fmt.Errorf("invalid gas limit %q", limit)
			}
			n = f.Num().Uint64()
		}
		if n == 0 {
			return GasPolicy{}, fmt.Errorf("gas limit must be positive or %q", Auto)
		}
		p.Limit = n
	}
	return p, nil
}

// GweiToWei converts a decimal gwei amount into wei, truncating fractional wei.
func GweiToWei(gwei string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(gwei)
	if !ok {
		return nil, fmt.Errorf("invalid gwei value %q", gwei)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative gwei value %q", gwei)
	}
	r.Mul(r, new(big.Rat).SetInt64(params.GWei))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}
