package chain

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/airdrop-claimer/internal/config"
)

// Built-in interfaces used when no ABI file is present.
const (
	ClaimABI = `[{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[` +
		`{"name":"nonce","type":"uint128"},{"name":"signature","type":"bytes"},{"name":"referrer","type":"address"}],"outputs":[]}]`

	TokenABI = `[` +
		`{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},` +
		`{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`
)

// Call is a packed contract invocation.
type Call struct {
	To   common.Address
	Data []byte
}

// Contract binds an ABI to a deployed address.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
}

func NewContract(addr common.Address, abiJSON string) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &Contract{Address: addr, ABI: parsed}, nil
}

// LoadContract reads the ABI at path, falling back to fallbackABI when the
// path is empty or the file does not exist.
func LoadContract(path string, addr common.Address, fallbackABI string) (*Contract, error) {
	abiJSON := fallbackABI
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			abiJSON = string(config.StripBOM(raw))
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read abi %s: %w", path, err)
		}
	}
	c, err := NewContract(addr, abiJSON)
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w", addr.Hex(), err)
	}
	return c, nil
}

// Pack encodes a method call. *big.Int arguments are converted to the
// fixed-width Go integer the ABI expects for types up to 64 bits.
func (c *Contract) Pack(method string, args ...any) (Call, error) {
	m, ok := c.ABI.Methods[method]
	if !ok {
		return Call{}, fmt.Errorf("method %q not in abi", method)
	}
	if len(args) != len(m.Inputs) {
		return Call{}, fmt.Errorf("%s: got %d args, abi wants %d", method, len(args), len(m.Inputs))
	}
	coerced := make([]any, len(args))
	for i, arg := range args {
		v, err := coerce(m.Inputs[i].Type, arg)
		if err != nil {
			return Call{}, fmt.Errorf("%s arg %s: %w", method, m.Inputs[i].Name, err)
		}
		coerced[i] = v
	}
	data, err := c.ABI.Pack(method, coerced...)
	if err != nil {
		return Call{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return Call{To: c.Address, Data: data}, nil
}

// Unpack decodes the return values of method.
func (c *Contract) Unpack(method string, data []byte) ([]any, error) {
	out, err := c.ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func coerce(t abi.Type, arg any) (any, error) {
	switch v := arg.(type) {
	case *big.Int:
		target := t.GetType()
		if (t.T != abi.UintTy && t.T != abi.IntTy) || target.Kind() == reflect.Ptr {
			return v, nil
		}
		out := reflect.New(target).Elem()
		if t.T == abi.UintTy {
			if v.Sign() < 0 || !v.IsUint64() || out.OverflowUint(v.Uint64()) {
				return nil, fmt.Errorf("%s does not fit %s", v, t)
			}
			out.SetUint(v.Uint64())
			return out.Interface(), nil
		}
		if !v.IsInt64() || out.OverflowInt(v.Int64()) {
			return nil, fmt.Errorf("%s does not fit %s", v, t)
		}
		out.SetInt(v.Int64())
		return out.Interface(), nil
	case string:
		if t.T == abi.AddressTy && common.IsHexAddress(v) {
			return common.HexToAddress(v), nil
		}
	}
	return arg, nil
}
