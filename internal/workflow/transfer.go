package workflow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/account"
	"github.com/0gfoundation/airdrop-claimer/internal/chain"
	"github.com/0gfoundation/airdrop-claimer/internal/config"
)

const ActionTransfer = "transfer"

// Transfer moves an account's whole token balance to a fixed destination.
type Transfer struct {
	submitter
	token *chain.Contract
	to    common.Address
}

func NewTransfer(ledger Ledger, token *chain.Contract, to common.Address, gas config.GasPolicy, log *zap.Logger) *Transfer {
	return &Transfer{
		submitter: newSubmitter(ledger, gas, log, "transferred", "not transferred"),
		token:     token,
		to:        to,
	}
}

func (t *Transfer) Name() string { return ActionTransfer }

func (t *Transfer) Run(ctx context.Context, key string) (Outcome, error) {
	out := Outcome{Action: ActionTransfer}
	acct, err := account.Parse(key)
	if err != nil {
		return out, err
	}
	out.Address = acct.Address

	balance, err := BalanceOf(ctx, t.ledger, t.token, acct.Address)
	if err != nil {
		return out, err
	}
	out.State = BalanceRead
	if balance.Sign() == 0 {
		out.State = Skipped
		return out, nil
	}

	call, err := t.token.Pack("transfer", t.to, balance)
	if err != nil {
		return out, fmt.Errorf("transfer call: %w", err)
	}
	return out, t.submit(ctx, acct, call, &out)
}

// BalanceOf reads the ERC-20 balance of holder in base units.
func BalanceOf(ctx context.Context, ledger Caller, token *chain.Contract, holder common.Address) (*big.Int, error) {
	call, err := token.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	to := call.To
	raw, err := ledger.Call(ctx, ethereum.CallMsg{From: holder, To: &to, Data: call.Data})
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	vals, err := token.Unpack("balanceOf", raw)
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("balanceOf returned %d values", len(vals))
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned %T", vals[0])
	}
	return bal, nil
}
