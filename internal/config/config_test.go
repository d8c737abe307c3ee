package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSettings = `{
  "rpc_url": "https://arb1.arbitrum.io/rpc",
  "claim_contract_address": "0x1111111111111111111111111111111111111111",
  "token_contract_address": "0x2222222222222222222222222222222222222222",
  "transfer_to_address": "0x3333333333333333333333333333333333333333",
  "gas_limit_claim": 1500000,
  "gwei_claim": 0.1,
  "gas_limit_transfer": "auto",
  "gwei_transfer": "auto"
}`

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestLoad_SettingsKeys(t *testing.T) {
	cfg, err := Load(writeSettings(t, testSettings))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURL != "https://arb1.arbitrum.io/rpc" {
		t.Errorf("rpc_url: got %q", cfg.RPCURL)
	}
	if cfg.ClaimGas.Limit != 1_500_000 {
		t.Errorf("claim gas limit: got %d want 1500000", cfg.ClaimGas.Limit)
	}
	if cfg.ClaimGas.Price == nil || cfg.ClaimGas.Price.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Errorf("claim gas price: got %v want 100000000 wei", cfg.ClaimGas.Price)
	}
	if !cfg.TransferGas.AutoPrice() || !cfg.TransferGas.AutoLimit() {
		t.Errorf("transfer gas should be auto/auto, got %+v", cfg.TransferGas)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeSettings(t, testSettings))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClaimReferrer != "0xDEADf12DE9A24b47Da0a43E1bA70B8972F5296F2" {
		t.Errorf("claim_referrer default: got %q", cfg.ClaimReferrer)
	}
	if cfg.RetryAttempts != 8 {
		t.Errorf("retry_attempts default: got %d want 8", cfg.RetryAttempts)
	}
	if cfg.ReceiptTimeout != 5*time.Minute {
		t.Errorf("receipt_timeout default: got %v want 5m", cfg.ReceiptTimeout)
	}
	if cfg.ErrorsFile("claim") != "claim_errors.txt" || cfg.ErrorsFile("transfer") != "transfer_errors.txt" {
		t.Errorf("errors files: got %q / %q", cfg.ErrorsFile("claim"), cfg.ErrorsFile("transfer"))
	}
}

func TestLoad_ToleratesBOM(t *testing.T) {
	cfg, err := Load(writeSettings(t, "\xef\xbb\xbf"+testSettings))
	if err != nil {
		t.Fatalf("Load with BOM: %v", err)
	}
	if cfg.TokenContractAddress != "0x2222222222222222222222222222222222222222" {
		t.Errorf("token contract: got %q", cfg.TokenContractAddress)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CLAIMER_RPC_URL", "http://localhost:8545")
	t.Setenv("CLAIMER_RETRY_DELAY", "1s")

	cfg, err := Load(writeSettings(t, testSettings))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURL != "http://localhost:8545" {
		t.Errorf("rpc_url: got %q want env override", cfg.RPCURL)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("retry_delay: got %v want 1s", cfg.RetryDelay)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	body := strings.Replace(testSettings, `"rpc_url": "https://arb1.arbitrum.io/rpc",`, "", 1)
	_, err := Load(writeSettings(t, body))
	if err == nil || !strings.Contains(err.Error(), "rpc_url") {
		t.Fatalf("expected missing rpc_url error, got %v", err)
	}
}

func TestLoad_InvalidAddress(t *testing.T) {
	body := strings.Replace(testSettings, "0x2222222222222222222222222222222222222222", "0x22", 1)
	if _, err := Load(writeSettings(t, body)); err == nil {
		t.Fatal("expected invalid token address error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRequireTransferTarget(t *testing.T) {
	body := strings.Replace(testSettings, `"transfer_to_address": "0x3333333333333333333333333333333333333333",`, "", 1)
	cfg, err := Load(writeSettings(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.RequireTransferTarget(); err == nil {
		t.Fatal("expected error when transfer_to_address is empty")
	}
}

func TestParseGasPolicy(t *testing.T) {
	cases := []struct {
		gwei, limit string
		wantPrice   *big.Int
		wantLimit   uint64
		wantErr     bool
	}{
		{"auto", "auto", nil, 0, false},
		{"AUTO", "21000", nil, 21000, false},
		{"3", "auto", big.NewInt(3_000_000_000), 0, false},
		{"0.1", "150000", big.NewInt(100_000_000), 150000, false},
		{"0.0000000015", "auto", big.NewInt(1), 0, false},
		{"150000.0", "150000.0", big.NewInt(150_000_000_000_000), 150000, false},
		{"-1", "auto", nil, 0, true},
		{"cheap", "auto", nil, 0, true},
		{"auto", "0", nil, 0, true},
		{"auto", "1.5", nil, 0, true},
	}
	for _, tc := range cases {
		p, err := ParseGasPolicy(tc.gwei, tc.limit)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseGasPolicy(%q, %q): expected error", tc.gwei, tc.limit)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGasPolicy(%q, %q): %v", tc.gwei, tc.limit, err)
			continue
		}
		if (p.Price == nil) != (tc.wantPrice == nil) || (p.Price != nil && p.Price.Cmp(tc.wantPrice) != 0) {
			t.Errorf("ParseGasPolicy(%q, %q) price: got %v want %v", tc.gwei, tc.limit, p.Price, tc.wantPrice)
		}
		if p.Limit != tc.wantLimit {
			t.Errorf("ParseGasPolicy(%q, %q) limit: got %d want %d", tc.gwei, tc.limit, p.Limit, tc.wantLimit)
		}
	}
}
