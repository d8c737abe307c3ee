package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0gfoundation/airdrop-claimer/internal/backoff"
	"github.com/0gfoundation/airdrop-claimer/internal/config"
)

// ErrReceiptTimeout is returned when a transaction is not mined in time.
var ErrReceiptTimeout = errors.New("receipt wait timed out")

// Node is the subset of *ethclient.Client the ledger client needs.
type Node interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Node = (*ethclient.Client)(nil)

// Options tune retries, rate limiting and receipt polling.
type Options struct {
	Retry          backoff.Policy
	RateLimit      float64 // requests per second, 0 = unlimited
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// OptionsFromConfig derives client options from the settings file.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Retry:          backoff.FromConfig(cfg),
		RateLimit:      cfg.RPCRateLimit,
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.ReceiptPollInterval,
	}
}

// Client is the shared, concurrency-safe ledger handle. It holds no
// per-account state.
type Client struct {
	node    Node
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient dials cfg.RPCURL with a pooled HTTP transport.
func NewClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.HTTPTimeout,
	}
	rc, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewClientWithNode(ethclient.NewClient(rc), OptionsFromConfig(cfg), log), nil
}

func NewClientWithNode(node Node, opts Options, log *zap.Logger) *Client {
	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Client{
		node:    node,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}
}

// do waits for a rate-limit slot before every attempt of fn.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error, fields ...zap.Field) error {
	return backoff.Do(ctx, c.opts.Retry, c.log, op, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := fn(ctx)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, fields...)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.do(ctx, "get chain id", func(ctx context.Context) (err error) {
		id, err = c.node.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return id, nil
}

// GasPrice returns the node's current gas price in wei.
func (c *Client) GasPrice(ctx context.Context, subject common.Address) (*big.Int, error) {
	var price *big.Int
	err := c.do(ctx, "get gas price", func(ctx context.Context) (err error) {
		price, err = c.node.SuggestGasPrice(ctx)
		return err
	}, zap.String("address", subject.Hex()))
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	return price, nil
}

// Nonce returns the pending transaction count of addr.
func (c *Client) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	var nonce uint64
	err := c.do(ctx, "get nonce", func(ctx context.Context) (err error) {
		nonce, err = c.node.PendingNonceAt(ctx, addr)
		return err
	}, zap.String("address", addr.Hex()))
	if err != nil {
		return 0, fmt.Errorf("nonce: %w", err)
	}
	return nonce, nil
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.do(ctx, "estimate gas", func(ctx context.Context) (err error) {
		gas, err = c.node.EstimateGas(ctx, msg)
		return err
	}, zap.String("address", msg.From.Hex()))
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

// Call runs a read-only contract call against the latest block.
func (c *Client) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "contract call", func(ctx context.Context) (err error) {
		out, err = c.node.CallContract(ctx, msg, nil)
		return err
	}, zap.String("address", msg.From.Hex()))
	if err != nil {
		return nil, fmt.Errorf("contract call: %w", err)
	}
	return out, nil
}

// SendRaw broadcasts a signed transaction and returns its hash. Re-sending the
// identical payload is idempotent: "already known" counts as accepted, and so
// does "nonce too low" once an earlier attempt may have reached the node.
func (c *Client) SendRaw(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	from, _ := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	attempt := 0
	err := c.do(ctx, "send transaction", func(ctx context.Context) error {
		attempt++
		err := c.node.SendTransaction(ctx, tx)
		switch {
		case err == nil, isAlreadyKnown(err):
			return nil
		case attempt == 1 && isNonceTooLow(err):
			return backoff.Permanent(err)
		case isNonceTooLow(err):
			c.log.Warn("nonce consumed after resend, assuming earlier broadcast landed",
				zap.String("address", from.Hex()),
				zap.String("tx", tx.Hash().Hex()),
			)
			return nil
		}
		return err
	}, zap.String("address", from.Hex()), zap.String("tx", tx.Hash().Hex()))
	if err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return tx.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ReceiptTimeout
// elapses.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.opts.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ReceiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.waitErr(ctx, hash)
		}
		receipt, err := c.node.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			c.log.Warn("get receipt failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, c.waitErr(ctx, hash)
		case <-ticker.C:
		}
	}
}

func (c *Client) waitErr(ctx context.Context, hash common.Hash) error {
	// limiter.Wait refuses early when the deadline cannot be met
	if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrReceiptTimeout, c.opts.ReceiptTimeout, hash.Hex())
	}
	return fmt.Errorf("wait receipt %s: %w", hash.Hex(), ctx.Err())
}

// non-retryable node answers: retrying returns the same verdict
var permanentMessages = []string{
	"execution reverted",
	"insufficient funds",
	"intrinsic gas too low",
	"invalid sender",
	"gas required exceeds allowance",
	"exceeds block gas limit",
}

// IsTransient reports whether a node error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range permanentMessages {
		if strings.Contains(msg, m) {
			return false
		}
	}
	return true
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func isNonceTooLow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}
