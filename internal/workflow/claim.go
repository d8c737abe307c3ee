package workflow

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/account"
	"github.com/0gfoundation/airdrop-claimer/internal/chain"
	"github.com/0gfoundation/airdrop-claimer/internal/config"
	"github.com/0gfoundation/airdrop-claimer/internal/voucher"
)

const ActionClaim = "claim"

// VoucherSource hands out eligibility vouchers.
type VoucherSource interface {
	Fetch(ctx context.Context, addr common.Address) (*voucher.Voucher, error)
}

var _ VoucherSource = (*voucher.Client)(nil)

// Claim redeems a voucher through the claim contract.
type Claim struct {
	submitter
	vouchers VoucherSource
	contract *chain.Contract
	referrer common.Address
}

func NewClaim(ledger Ledger, vouchers VoucherSource, contract *chain.Contract, referrer common.Address, gas config.GasPolicy, log *zap.Logger) *Claim {
	return &Claim{
		submitter: newSubmitter(ledger, gas, log, "claimed", "not claimed"),
		vouchers:  vouchers,
		contract:  contract,
		referrer:  referrer,
	}
}

func (c *Claim) Name() string { return ActionClaim }

func (c *Claim) Run(ctx context.Context, key string) (Outcome, error) {
	out := Outcome{Action: ActionClaim}
	acct, err := account.Parse(key)
	if err != nil {
		return out, err
	}
	out.Address = acct.Address

	v, err := c.vouchers.Fetch(ctx, acct.Address)
	if err != nil {
		return out, err
	}
	out.State = VoucherFetched

	call, err := c.contract.Pack("claim", v.Nonce, v.Signature, c.referrer)
	if err != nil {
		return out, fmt.Errorf("claim call: %w", err)
	}
	return out, c.submit(ctx, acct, call, &out)
}
