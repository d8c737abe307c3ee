package voucher

import (
	"encoding/json"
	"math/big"
)

// Voucher is the eligibility proof the claim contract verifies on-chain.
// It is issued per address and consumed by a single claim attempt.
type Voucher struct {
	Nonce     *big.Int
	Signature []byte
}

// response mirrors the eligibility API payload.
type response struct {
	Data *struct {
		Nonce     json.RawMessage `json:"nonce"`
		Signature string          `json:"signature"`
	} `json:"data"`
}
