package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// DefaultPath is the settings file read when no path is given.
const DefaultPath = "settings.json"

// Config is built once at startup and shared read-only by every worker.
type Config struct {
	RPCURL               string `mapstructure:"rpc_url"`
	ClaimContractAddress string `mapstructure:"claim_contract_address"`
	TokenContractAddress string `mapstructure:"token_contract_address"`
	TransferToAddress    string `mapstructure:"transfer_to_address"`

	// Gas values are either a number or "auto".
	GasLimitClaim    string `mapstructure:"gas_limit_claim"`
	GweiClaim        string `mapstructure:"gwei_claim"`
	GasLimitTransfer string `mapstructure:"gas_limit_transfer"`
	GweiTransfer     string `mapstructure:"gwei_transfer"`

	EligibilityURL string `mapstructure:"eligibility_url"`
	ClaimReferrer  string `mapstructure:"claim_referrer"`

	AccountsFile       string `mapstructure:"accounts_file"`
	ClaimABIFile       string `mapstructure:"claim_abi_file"`
	TokenABIFile       string `mapstructure:"token_abi_file"`
	ClaimErrorsFile    string `mapstructure:"claim_errors_file"`
	TransferErrorsFile string `mapstructure:"transfer_errors_file"`

	RetryAttempts       uint          `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	RetryMaxDelay       time.Duration `mapstructure:"retry_max_delay"`
	RetryMaxJitter      time.Duration `mapstructure:"retry_max_jitter"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	RPCRateLimit        float64       `mapstructure:"rpc_rate_limit"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	StatusPort    int    `mapstructure:"status_port"`

	// Resolved by validate.
	ClaimGas    GasPolicy `mapstructure:"-"`
	TransferGas GasPolicy `mapstructure:"-"`
}

// Load reads settings from path (DefaultPath when empty), then applies
// CLAIMER_* environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	v := viper.New()

	// Defaults
	v.SetDefault("rpc_url", "")
	v.SetDefault("claim_contract_address", "")
	v.SetDefault("token_contract_address", "")
	v.SetDefault("transfer_to_address", "")
	v.SetDefault("gas_limit_claim", Auto)
	v.SetDefault("gwei_claim", Auto)
	v.SetDefault("gas_limit_transfer", Auto)
	v.SetDefault("gwei_transfer", Auto)
	v.SetDefault("eligibility_url", "https://api.arbdoge.ai/arb/eligibility/claim")
	v.SetDefault("claim_referrer", "0xDEADf12DE9A24b47Da0a43E1bA70B8972F5296F2")
	v.SetDefault("accounts_file", "accounts.txt")
	v.SetDefault("claim_abi_file", "claim_abi.json")
	v.SetDefault("token_abi_file", "token_abi.json")
	v.SetDefault("claim_errors_file", "claim_errors.txt")
	v.SetDefault("transfer_errors_file", "transfer_errors.txt")
	v.SetDefault("retry_attempts", 8)
	v.SetDefault("retry_delay", "500ms")
	v.SetDefault("retry_max_delay", "15s")
	v.SetDefault("retry_max_jitter", "250ms")
	v.SetDefault("receipt_timeout", "5m")
	v.SetDefault("receipt_poll_interval", "2s")
	v.SetDefault("rpc_rate_limit", 0)
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("status_port", 0)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(StripBOM(raw))); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	v.SetEnvPrefix("CLAIMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.RPCURL, "rpc_url"},
		{c.ClaimContractAddress, "claim_contract_address"},
		{c.TokenContractAddress, "token_contract_address"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	for _, a := range []req{
		{c.ClaimContractAddress, "claim_contract_address"},
		{c.TokenContractAddress, "token_contract_address"},
		{c.ClaimReferrer, "claim_referrer"},
	} {
		if !common.IsHexAddress(a.val) {
			return fmt.Errorf("invalid address for %s: %q", a.name, a.val)
		}
	}
	// transfer_to_address is only needed by the transfer action, so an empty
	// value is accepted here and rejected by RequireTransferTarget.
	if c.TransferToAddress != "" && !common.IsHexAddress(c.TransferToAddress) {
		return fmt.Errorf("invalid address for transfer_to_address: %q", c.TransferToAddress)
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("retry_attempts must be at least 1")
	}
	if c.ReceiptTimeout <= 0 || c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("receipt_timeout and receipt_poll_interval must be positive")
	}
	if c.RPCRateLimit < 0 {
		return fmt.Errorf("rpc_rate_limit must not be negative")
	}

	var err error
	if c.ClaimGas, err = ParseGasPolicy(c.GweiClaim, c.GasLimitClaim); err != nil {
		return fmt.Errorf("claim gas: %w", err)
	}
	if c.TransferGas, err = ParseGasPolicy(c.GweiTransfer, c.GasLimitTransfer); err != nil {
		return fmt.Errorf("transfer gas: %w", err)
	}
	return nil
}

// RequireTransferTarget reports whether the transfer action can run.
func (c *Config) RequireTransferTarget() error {
	if c.TransferToAddress == "" {
		return fmt.Errorf("required config missing: transfer_to_address")
	}
	return nil
}

// ErrorsFile returns the failure log path for an action ("claim" or "transfer").
func (c *Config) ErrorsFile(action string) string {
	if action == "transfer" {
		return c.TransferErrorsFile
	}
	return c.ClaimErrorsFile
}

// StripBOM drops a leading UTF-8 byte order mark.
func StripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
}
