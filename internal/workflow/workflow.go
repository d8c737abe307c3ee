// Package workflow holds the per-account claim and transfer state machines.
package workflow

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/account"
	"github.com/0gfoundation/airdrop-claimer/internal/chain"
	"github.com/0gfoundation/airdrop-claimer/internal/config"
	"github.com/0gfoundation/airdrop-claimer/internal/txbuilder"
)

// Caller runs read-only contract calls.
type Caller interface {
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Ledger is everything a workflow needs from the node.
type Ledger interface {
	txbuilder.Node
	Caller
	SendRaw(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

var _ Ledger = (*chain.Client)(nil)

// Runner processes a single account identified by its private key.
type Runner interface {
	Name() string
	Run(ctx context.Context, key string) (Outcome, error)
}

type State int

const (
	Start State = iota
	VoucherFetched
	BalanceRead
	TxBuilt
	TxSigned
	TxSent
	Confirmed
	Rejected
	Skipped
)

var stateNames = [...]string{
	Start:          "start",
	VoucherFetched: "voucher_fetched",
	BalanceRead:    "balance_read",
	TxBuilt:        "tx_built",
	TxSigned:       "tx_signed",
	TxSent:         "tx_sent",
	Confirmed:      "confirmed",
	Rejected:       "rejected",
	Skipped:        "skipped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s ends an account's workflow without error.
func (s State) Terminal() bool {
	return s == Confirmed || s == Rejected || s == Skipped
}

// Outcome is the last state an account reached. TxHash is set once the
// transaction was signed.
type Outcome struct {
	Action  string
	Address common.Address
	State   State
	TxHash  common.Hash
}

// submitter is the build → sign → send → confirm tail shared by both actions.
type submitter struct {
	ledger  Ledger
	builder *txbuilder.Builder
	gas     config.GasPolicy
	log     *zap.Logger

	okMsg   string
	failMsg string
}

func newSubmitter(ledger Ledger, gas config.GasPolicy, log *zap.Logger, okMsg, failMsg string) submitter {
	return submitter{
		ledger:  ledger,
		builder: txbuilder.New(ledger),
		gas:     gas,
		log:     log,
		okMsg:   okMsg,
		failMsg: failMsg,
	}
}

func (s submitter) submit(ctx context.Context, acct account.Account, call chain.Call, out *Outcome) error {
	req, err := s.builder.Build(ctx, call, acct.Address, s.gas)
	if err != nil {
		return fmt.Errorf("build tx: %w", err)
	}
	out.State = TxBuilt

	tx, err := txbuilder.Sign(req, acct.Key)
	if err != nil {
		return err
	}
	out.State = TxSigned
	out.TxHash = tx.Hash()

	hash, err := s.ledger.SendRaw(ctx, tx)
	if err != nil {
		return err
	}
	out.State = TxSent
	s.log.Info("transaction sent",
		zap.String("address", acct.Address.Hex()),
		zap.String("tx", hash.Hex()),
	)

	receipt, err := s.ledger.WaitForReceipt(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		out.State = Confirmed
		s.log.Info(s.okMsg,
			zap.String("address", acct.Address.Hex()),
			zap.String("tx", hash.Hex()),
		)
		return nil
	}
	out.State = Rejected
	s.log.Error(s.failMsg,
		zap.String("address", acct.Address.Hex()),
		zap.String("tx", hash.Hex()),
	)
	return nil
}
