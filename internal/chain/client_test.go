package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/0gfoundation/airdrop-claimer/internal/backoff"
)

// ── fake node ─────────────────────────────────────────────────────────────────

type fakeNode struct {
	mu sync.Mutex

	nonceErrs   []error // returned in order before succeeding
	nonce       uint64
	nonceCalls  int
	sendErrs    []error
	sendCalls   int
	estimateErr error
	estimates   int
	receipts    map[common.Hash]*types.Receipt
	receiptErrs []error
	pollsBefore int // NotFound answers before the receipt appears
	polls       int
}

func (f *fakeNode) ChainID(context.Context) (*big.Int, error) { return big.NewInt(42161), nil }

func (f *fakeNode) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(100_000_000), nil
}

func (f *fakeNode) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	if len(f.nonceErrs) > 0 {
		err := f.nonceErrs[0]
		f.nonceErrs = f.nonceErrs[1:]
		return 0, err
	}
	return f.nonce, nil
}

func (f *fakeNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates++
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 90_000, nil
}

func (f *fakeNode) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return common.LeftPadBytes(big.NewInt(7).Bytes(), 32), nil
}

func (f *fakeNode) SendTransaction(context.Context, *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return err
	}
	return nil
}

func (f *fakeNode) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.receiptErrs) > 0 {
		err := f.receiptErrs[0]
		f.receiptErrs = f.receiptErrs[1:]
		return nil, err
	}
	if f.polls <= f.pollsBefore {
		return nil, ethereum.NotFound
	}
	if r, ok := f.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

// rpcCodeErr mimics a JSON-RPC error object.
type rpcCodeErr struct {
	code int
	msg  string
}

func (e rpcCodeErr) Error() string  { return e.msg }
func (e rpcCodeErr) ErrorCode() int { return e.code }

// ── helpers ───────────────────────────────────────────────────────────────────

func testOptions() Options {
	return Options{
		Retry:          backoff.Policy{Attempts: 5, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		ReceiptTimeout: 500 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}
}

func signedTx(t *testing.T) *types.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	chainID := big.NewInt(42161)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    3,
		To:       &common.Address{0x11},
		Gas:      21_000,
		GasPrice: big.NewInt(1),
		Value:    big.NewInt(0),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

// ── retry behaviour ───────────────────────────────────────────────────────────

func TestNonce_RetriesTransientAndLogsAddress(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	node := &fakeNode{
		nonce:     9,
		nonceErrs: []error{errors.New("429 Too Many Requests"), errors.New("i/o timeout")},
	}
	c := NewClientWithNode(node, testOptions(), zap.New(core))
	addr := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	n, err := c.Nonce(context.Background(), addr)
	if err != nil {
		t.Fatalf("Nonce: %v", err)
	}
	if n != 9 {
		t.Errorf("nonce: got %d want 9", n)
	}
	if node.nonceCalls != 3 {
		t.Errorf("node calls: got %d want 3", node.nonceCalls)
	}
	if logs.Len() != 2 {
		t.Fatalf("warn logs: got %d want 2", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["address"]; got != addr.Hex() {
		t.Errorf("logged address: got %v want %s", got, addr.Hex())
	}
}

func TestNonce_GivesUpAfterAttempts(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = errors.New("connection refused")
	}
	node := &fakeNode{nonceErrs: errs}
	c := NewClientWithNode(node, testOptions(), zap.NewNop())

	if _, err := c.Nonce(context.Background(), common.Address{}); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if node.nonceCalls != 5 {
		t.Errorf("node calls: got %d want 5", node.nonceCalls)
	}
}

func TestEstimateGas_RevertNotRetried(t *testing.T) {
	node := &fakeNode{estimateErr: rpcCodeErr{code: 3, msg: "execution reverted: already claimed"}}
	c := NewClientWithNode(node, testOptions(), zap.NewNop())

	_, err := c.EstimateGas(context.Background(), ethereum.CallMsg{})
	if err == nil {
		t.Fatal("expected revert error")
	}
	if node.estimates != 1 {
		t.Errorf("estimate calls: got %d want 1", node.estimates)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("429 Too Many Requests"), true},
		{rpcCodeErr{code: -32000, msg: "header not found"}, true},
		{rpcCodeErr{code: 3, msg: "reverted"}, false},
		{errors.New("insufficient funds for gas * price + value"), false},
		{errors.New("Execution Reverted"), false},
		{context.Canceled, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v): got %v want %v", tc.err, got, tc.want)
		}
	}
}

// ── SendRaw ───────────────────────────────────────────────────────────────────

func TestSendRaw_ReturnsLocalHash(t *testing.T) {
	node := &fakeNode{}
	c := NewClientWithNode(node, testOptions(), zap.NewNop())
	tx := signedTx(t)

	h, err := c.SendRaw(context.Background(), tx)
	if err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	if h != tx.Hash() {
		t.Errorf("hash: got %s want %s", h.Hex(), tx.Hash().Hex())
	}
	if h != crypto.Keccak256Hash(mustMarshal(t, tx)) {
		t.Error("hash is not keccak256 of the raw signed payload")
	}
}

func TestSendRaw_RebroadcastAlreadyKnown(t *testing.T) {
	node := &fakeNode{sendErrs: []error{errors.New("EOF"), errors.New("already known")}}
	c := NewClientWithNode(node, testOptions(), zap.NewNop())

	if _, err := c.SendRaw(context.Background(), signedTx(t)); err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	if node.sendCalls != 2 {
		t.Errorf("send calls: got %d want 2", node.sendCalls)
	}
}

func TestSendRaw_NonceTooLowAfterResend(t *testing.T) {
	node := &fakeNode{sendErrs: []error{errors.New("context deadline exceeded"), errors.New("nonce too low")}}
	c := NewClientWithNode(node, testOptions(), zap.NewNop())

	if _, err := c.SendRaw(context.Background(), signedTx(t)); err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
}

func TestSendRaw_NonceTooLowFirstAttemptFails(t *testing.T) {
	node := &fakeNode{sendErrs: []error{errors.New("nonce too low"), errors.New("nonce too low")}}
	c := NewClientWithNode(node, testOptions(), zap.NewNop())

	if _, err := c.SendRaw(context.Background(), signedTx(t)); err == nil {
		t.Fatal("expected nonce too low error")
	}
	if node.sendCalls != 1 {
		t.Errorf("send calls: got %d want 1", node.sendCalls)
	}
}

func TestSendRaw_InsufficientFunds(t *testing.T) {
	node := &fakeNode{sendErrs: []error{errors.New("insufficient funds for gas * price + value")}}
	c := NewClientWithNode(node, testOptions(), zap.NewNop())

	if _, err := c.SendRaw(context.Background(), signedTx(t)); err == nil {
		t.Fatal("expected insufficient funds error")
	}
	if node.sendCalls != 1 {
		t.Errorf("send calls: got %d want 1", node.sendCalls)
	}
}

// ── WaitForReceipt ────────────────────────────────────────────────────────────

func TestWaitForReceipt_PollsUntilMined(t *testing.T) {
	h := common.HexToHash("0x01")
	node := &fakeNode{
		pollsBefore: 3,
		receiptErrs: []error{errors.New("502 bad gateway")},
		receipts:    map[common.Hash]*types.Receipt{h: {Status: types.ReceiptStatusSuccessful, TxHash: h}},
	}
	c := NewClientWithNode(node, testOptions(), zap.NewNop())

	r, err := c.WaitForReceipt(context.Background(), h)
	if err != nil {
		t.Fatalf("WaitForReceipt: %v", err)
	}
	if r.Status != types.ReceiptStatusSuccessful {
		t.Errorf("status: got %d want 1", r.Status)
	}
	if node.polls < 4 {
		t.Errorf("polls: got %d want >= 4", node.polls)
	}
}

func TestWaitForReceipt_Timeout(t *testing.T) {
	opts := testOptions()
	opts.ReceiptTimeout = 30 * time.Millisecond
	c := NewClientWithNode(&fakeNode{}, opts, zap.NewNop())

	_, err := c.WaitForReceipt(context.Background(), common.HexToHash("0x02"))
	if !errors.Is(err, ErrReceiptTimeout) {
		t.Fatalf("err: got %v want ErrReceiptTimeout", err)
	}
}

func TestWaitForReceipt_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClientWithNode(&fakeNode{}, testOptions(), zap.NewNop())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.WaitForReceipt(ctx, common.HexToHash("0x03"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err: got %v want context.Canceled", err)
	}
}

// ── rate limit ────────────────────────────────────────────────────────────────

func TestRateLimit_SpacesCalls(t *testing.T) {
	opts := testOptions()
	opts.RateLimit = 20 // one token every 50ms, burst 20
	c := NewClientWithNode(&fakeNode{}, opts, zap.NewNop())

	start := time.Now()
	for i := 0; i < 25; i++ {
		if _, err := c.ChainID(context.Background()); err != nil {
			t.Fatalf("ChainID: %v", err)
		}
	}
	// 20 calls ride the burst, the remaining 5 wait ~50ms each
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("25 calls at 20 req/s took %v, want >= 200ms", elapsed)
	}
}

func mustMarshal(t *testing.T, tx *types.Transaction) []byte {
	t.Helper()
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}
