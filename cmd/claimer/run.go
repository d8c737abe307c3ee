package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/account"
	"github.com/0gfoundation/airdrop-claimer/internal/backoff"
	"github.com/0gfoundation/airdrop-claimer/internal/chain"
	"github.com/0gfoundation/airdrop-claimer/internal/config"
	"github.com/0gfoundation/airdrop-claimer/internal/dispatch"
	"github.com/0gfoundation/airdrop-claimer/internal/errlog"
	"github.com/0gfoundation/airdrop-claimer/internal/progress"
	"github.com/0gfoundation/airdrop-claimer/internal/status"
	"github.com/0gfoundation/airdrop-claimer/internal/voucher"
	"github.com/0gfoundation/airdrop-claimer/internal/workflow"
)

func run(ctx context.Context, cfgPath, action string, n int, log *zap.Logger) (dispatch.Summary, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return dispatch.Summary{}, err
	}
	if action == workflow.ActionTransfer {
		if err := cfg.RequireTransferTarget(); err != nil {
			return dispatch.Summary{}, err
		}
	}

	keys, err := account.LoadKeys(cfg.AccountsFile)
	if err != nil {
		return dispatch.Summary{}, err
	}
	log.Info("accounts loaded", zap.Int("count", len(keys)), zap.String("action", action), zap.Int("workers", n))

	// ── Chain client ──────────────────────────────────────────────────────────
	ledger, err := chain.NewClient(ctx, cfg, log)
	if err != nil {
		return dispatch.Summary{}, err
	}

	runner, err := newRunner(cfg, ledger, action, log)
	if err != nil {
		return dispatch.Summary{}, err
	}

	// ── Failure log (+ optional Redis mirror) ─────────────────────────────────
	failures := errlog.Multi{errlog.NewFileLog(cfg.ErrorsFile(action))}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return dispatch.Summary{}, fmt.Errorf("redis ping: %w", err)
		}
		failures = append(failures, errlog.NewRedisLog(rdb, action))
	}

	tracker := progress.New(action, len(keys), rdb, log)
	tracker.Start(ctx)

	// ── Status endpoint ───────────────────────────────────────────────────────
	if cfg.StatusPort > 0 {
		statusCtx, stop := context.WithCancel(ctx)
		defer stop()
		go status.Serve(statusCtx, cfg.StatusPort, tracker, log)
	}

	summary := dispatch.Run(ctx, keys, runner, n, failures, tracker, log)
	log.Info("run finished",
		zap.String("run_id", tracker.RunID()),
		zap.String("summary", summary.String()),
	)
	return summary, nil
}

func newRunner(cfg *config.Config, ledger workflow.Ledger, action string, log *zap.Logger) (workflow.Runner, error) {
	switch action {
	case workflow.ActionClaim:
		contract, err := chain.LoadContract(cfg.ClaimABIFile, common.HexToAddress(cfg.ClaimContractAddress), chain.ClaimABI)
		if err != nil {
			return nil, err
		}
		vouchers := voucher.NewClient(cfg.EligibilityURL, cfg.HTTPTimeout, backoff.FromConfig(cfg), log)
		return workflow.NewClaim(ledger, vouchers, contract,
			common.HexToAddress(cfg.ClaimReferrer), cfg.ClaimGas, log), nil
	case workflow.ActionTransfer:
		contract, err := chain.LoadContract(cfg.TokenABIFile, common.HexToAddress(cfg.TokenContractAddress), chain.TokenABI)
		if err != nil {
			return nil, err
		}
		return workflow.NewTransfer(ledger, contract,
			common.HexToAddress(cfg.TransferToAddress), cfg.TransferGas, log), nil
	}
	return nil, fmt.Errorf("unknown action %q", action)
}
