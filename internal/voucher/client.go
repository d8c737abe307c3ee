package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/backoff"
)

// ErrNotEligible is returned when the API rejects the address outright.
var ErrNotEligible = errors.New("address not eligible")

// Client talks to the eligibility API.
type Client struct {
	url    string
	http   *http.Client
	policy backoff.Policy
	log    *zap.Logger
}

func NewClient(endpoint string, timeout time.Duration, policy backoff.Policy, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    endpoint,
		http:   &http.Client{Timeout: timeout},
		policy: policy,
		log:    log,
	}
}

// URL returns the configured endpoint.
func (c *Client) URL() string { return c.url }

// Fetch requests a fresh voucher for addr. Network failures, 5xx, 408, 429
// and unreadable payloads are retried; any other 4xx wraps ErrNotEligible.
func (c *Client) Fetch(ctx context.Context, addr common.Address) (*Voucher, error) {
	var v *Voucher
	err := backoff.Do(ctx, c.policy, c.log, "get voucher", func(ctx context.Context) (err error) {
		v, err = c.fetch(ctx, addr)
		return err
	}, zap.String("address", addr.Hex()))
	if err != nil {
		return nil, fmt.Errorf("voucher %s: %w", addr.Hex(), err)
	}
	return v, nil
}

func (c *Client) fetch(ctx context.Context, addr common.Address) (*Voucher, error) {
	form := url.Values{"address": {addr.Hex()}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))
	default:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrNotEligible, resp.StatusCode, snippet(body)))
	}
	return decode(body)
}

func decode(body []byte) (*Voucher, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode voucher: %w", err)
	}
	if r.Data == nil {
		return nil, fmt.Errorf("decode voucher: missing data: %s", snippet(body))
	}
	nonce, err := parseNonce(r.Data.Nonce)
	if err != nil {
		return nil, err
	}
	if strings.TrimPrefix(strings.TrimPrefix(r.Data.Signature, "0x"), "0X") == "" {
		return nil, errors.New("decode voucher: empty signature")
	}
	return &Voucher{Nonce: nonce, Signature: common.FromHex(r.Data.Signature)}, nil
}

// parseNonce accepts a JSON number or a decimal/0x-hex string.
func parseNonce(raw json.RawMessage) (*big.Int, error) {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(raw)), `"`))
	if s == "" || s == "null" {
		return nil, errors.New("decode voucher: missing nonce")
	}
	base := 10
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s, base = s[2:], 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("decode voucher: bad nonce %q", s)
	}
	return n, nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
