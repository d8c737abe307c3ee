package account

import (
	"bufio"
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey is returned for keys that are not 32-byte secp256k1 scalars.
var ErrInvalidKey = errors.New("invalid private key")

// Account is a private key together with its checksummed address.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NormalizeKey trims whitespace and adds the 0x prefix when missing.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}

// Parse decodes a hex private key (with or without 0x) into an Account.
func Parse(hexKey string) (Account, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(NormalizeKey(hexKey), "0x"))
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// DeriveAddress returns the address controlled by hexKey. Use Address.Hex()
// for the EIP-55 checksummed form.
func DeriveAddress(hexKey string) (common.Address, error) {
	acct, err := Parse(hexKey)
	if err != nil {
		return common.Address{}, err
	}
	return acct.Address, nil
}

// LoadKeys reads a newline-delimited key list. Blank lines are skipped and
// every key is normalized; keys are not validated here.
func LoadKeys(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keys %s: %w", path, err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var keys []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		keys = append(keys, NormalizeKey(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan keys %s: %w", path, err)
	}
	return keys, nil
}
