package main

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/account"
	"github.com/0gfoundation/airdrop-claimer/internal/chain"
	"github.com/0gfoundation/airdrop-claimer/internal/config"
	"github.com/0gfoundation/airdrop-claimer/internal/workflow"
)

func main() {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "checkbal",
		Short:        "Print the token balance of every account in the accounts file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(cmd.Context(), cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "Path to the JSON settings file")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func report(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	keys, err := account.LoadKeys(cfg.AccountsFile)
	if err != nil {
		return err
	}
	client, err := chain.NewClient(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	token, err := chain.LoadContract(cfg.TokenABIFile, common.HexToAddress(cfg.TokenContractAddress), chain.TokenABI)
	if err != nil {
		return err
	}

	total := new(big.Int)
	for _, key := range keys {
		addr, err := account.DeriveAddress(key)
		if err != nil {
			fmt.Printf("%-42s  %v\n", "invalid key", err)
			continue
		}
		bal, err := workflow.BalanceOf(ctx, client, token, addr)
		if err != nil {
			fmt.Printf("%s  error: %v\n", addr.Hex(), err)
			continue
		}
		total.Add(total, bal)
		fmt.Printf("%s  %s\n", addr.Hex(), formatUnits(bal))
	}
	fmt.Printf("%-42s  %s\n", "total", formatUnits(total))
	return nil
}

// formatUnits renders an 18-decimal token amount.
func formatUnits(v *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt64(params.Ether))
	return f.Text('f', 6)
}
