// Package txbuilder turns a packed contract call into a signed legacy
// transaction.
package txbuilder

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0gfoundation/airdrop-claimer/internal/chain"
	"github.com/0gfoundation/airdrop-claimer/internal/config"
)

// Node is the part of chain.Client the builder reads from.
type Node interface {
	ChainID(ctx context.Context) (*big.Int, error)
	GasPrice(ctx context.Context, subject common.Address) (*big.Int, error)
	Nonce(ctx context.Context, addr common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

var _ Node = (*chain.Client)(nil)

// Request is a fully resolved, unsigned transaction.
type Request struct {
	ChainID  *big.Int
	Nonce    uint64
	From     common.Address
	To       common.Address
	GasPrice *big.Int
	GasLimit uint64
	Value    *big.Int
	Data     []byte
}

// Tx returns the unsigned EIP-155 legacy transaction for r.
func (r *Request) Tx() *types.Transaction {
	to := r.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    r.Nonce,
		To:       &to,
		Gas:      r.GasLimit,
		GasPrice: r.GasPrice,
		Value:    r.Value,
		Data:     r.Data,
	})
}

type Builder struct {
	node Node
}

func New(node Node) *Builder {
	return &Builder{node: node}
}

// Build resolves chain id, pending nonce, gas price and gas limit for call.
// Literal policy values are used as-is; "auto" price costs one GasPrice read
// and "auto" limit one EstimateGas priced at that same value.
func (b *Builder) Build(ctx context.Context, call chain.Call, from common.Address, policy config.GasPolicy) (*Request, error) {
	chainID, err := b.node.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := b.node.Nonce(ctx, from)
	if err != nil {
		return nil, err
	}

	price := policy.Price
	if policy.AutoPrice() {
		if price, err = b.node.GasPrice(ctx, from); err != nil {
			return nil, err
		}
	}

	limit := policy.Limit
	if policy.AutoLimit() {
		to := call.To
		limit, err = b.node.EstimateGas(ctx, ethereum.CallMsg{
			From:     from,
			To:       &to,
			GasPrice: price,
			Value:    big.NewInt(0),
			Data:     call.Data,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Request{
		ChainID:  chainID,
		Nonce:    nonce,
		From:     from,
		To:       call.To,
		GasPrice: new(big.Int).Set(price),
		GasLimit: limit,
		Value:    big.NewInt(0),
		Data:     call.Data,
	}, nil
}

// Sign signs req with key. The key must belong to req.From.
func Sign(req *Request, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(req.ChainID)
	tx, err := types.SignTx(req.Tx(), signer, key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if from, err := types.Sender(signer, tx); err != nil || from != req.From {
		return nil, fmt.Errorf("sign tx: key does not match sender %s", req.From.Hex())
	}
	return tx, nil
}
