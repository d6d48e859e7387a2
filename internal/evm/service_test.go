package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/common"
	"github.com/coo-agent/coo-backend/internal/secrets"
)

const (
	testAdmin  = "admin-principal"
	testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

// localSigner signs with an in-process secp256k1 key, standing in for the
// remote threshold signer.
type localSigner struct {
	keyHex string
}

func (s *localSigner) PublicKey(ctx context.Context) ([]byte, error) {
	_ = ctx
	key, err := crypto.HexToECDSA(s.keyHex)
	if err != nil {
		return nil, err
	}
	return crypto.CompressPubkey(&key.PublicKey), nil
}

func (s *localSigner) Sign(ctx context.Context, digest [32]byte) ([]byte, error) {
	_ = ctx
	key, err := crypto.HexToECDSA(s.keyHex)
	if err != nil {
		return nil, err
	}
	full, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, err
	}
	return full[:64], nil
}

// fakeRPC records calls and returns canned values.
type fakeRPC struct {
	nonce     uint64
	nonceErr  error
	gasPrice  *big.Int
	balance   *big.Int
	sendErr   error
	sent      []*types.Transaction
	nonceHits int
}

func (r *fakeRPC) PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error) {
	_ = ctx
	_ = account
	r.nonceHits++
	return r.nonce, r.nonceErr
}

func (r *fakeRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	_ = ctx
	if r.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set(r.gasPrice), nil
}

func (r *fakeRPC) BalanceAt(ctx context.Context, account ethcommon.Address, blockNumber *big.Int) (*big.Int, error) {
	_ = ctx
	_ = account
	_ = blockNumber
	if r.balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(r.balance), nil
}

func (r *fakeRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_ = ctx
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, tx)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&ChainConfig{}, &TransactionRecord{}, &agentcfg.AgentConfig{}, &agentcfg.Character{}, &agentcfg.Secret{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestGate(t *testing.T, db *gorm.DB) *agentcfg.Service {
	t.Helper()
	vault, err := secrets.NewVault("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	gate := agentcfg.NewService(agentcfg.NewRepo(db), vault)
	if err := gate.Bootstrap(context.Background(), testAdmin, 50); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return gate
}

func newTestService(t *testing.T, rpc *fakeRPC) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	gate := newTestGate(t, db)
	dial := func(ctx context.Context, rpcURL string) (RPC, error) {
		_ = ctx
		_ = rpcURL
		return rpc, nil
	}
	return NewService(NewRepo(db), &localSigner{keyHex: testKeyHex}, dial, gate), db
}

func TestAddress_MatchesLocalKey(t *testing.T) {
	svc, _ := newTestService(t, &fakeRPC{})

	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)

	got, err := svc.Address(context.Background())
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if got != want {
		t.Fatalf("address mismatch: got %s want %s", got.Hex(), want.Hex())
	}
}

func TestBalance_UnconfiguredChain(t *testing.T) {
	svc, _ := newTestService(t, &fakeRPC{balance: big.NewInt(42)})

	_, err := svc.Balance(context.Background(), 137)
	if !errors.Is(err, common.ErrChainNotConfigured) {
		t.Fatalf("expected ErrChainNotConfigured, got %v", err)
	}
}

func TestConfigureChain_ThenBalance(t *testing.T) {
	rpc := &fakeRPC{balance: big.NewInt(1_000_000_000_000_000_000)}
	svc, _ := newTestService(t, rpc)

	err := svc.ConfigureChain(context.Background(), testAdmin, ChainConfig{
		ChainID:      8453,
		ChainName:    "Base",
		RPCURL:       "https://mainnet.base.org",
		NativeSymbol: "ETH",
		Decimals:     18,
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	bal, err := svc.Balance(context.Background(), 8453)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != "0xde0b6b3a7640000" {
		t.Fatalf("unexpected balance: %s", bal)
	}
}

func TestConfigureChain_NonAdmin(t *testing.T) {
	svc, _ := newTestService(t, &fakeRPC{})

	err := svc.ConfigureChain(context.Background(), "someone-else", ChainConfig{
		ChainID:      1,
		ChainName:    "Ethereum Mainnet",
		RPCURL:       "https://example.invalid",
		NativeSymbol: "ETH",
		Decimals:     18,
	})
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSendNative_BroadcastsRecoverableSignature(t *testing.T) {
	rpc := &fakeRPC{nonce: 7, gasPrice: big.NewInt(2_000_000_000)}
	svc, db := newTestService(t, rpc)

	if err := svc.ConfigureChain(context.Background(), testAdmin, ChainConfig{
		ChainID: 8453, ChainName: "Base", RPCURL: "https://mainnet.base.org", NativeSymbol: "ETH", Decimals: 18,
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	hash, err := svc.SendNative(context.Background(), testAdmin, 8453,
		"0x000000000000000000000000000000000000dEaD", "1000000000000000")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(rpc.sent))
	}

	tx := rpc.sent[0]
	if tx.Hash().Hex() != hash {
		t.Fatalf("hash mismatch: %s vs %s", tx.Hash().Hex(), hash)
	}
	if tx.Nonce() != 7 {
		t.Fatalf("unexpected nonce %d", tx.Nonce())
	}
	if tx.Gas() != nativeTransferGas {
		t.Fatalf("unexpected gas %d", tx.Gas())
	}
	// maxFeePerGas is 2x the suggested price
	if tx.GasFeeCap().Cmp(big.NewInt(4_000_000_000)) != 0 {
		t.Fatalf("unexpected fee cap %s", tx.GasFeeCap())
	}

	// The signed tx must recover to the wallet address.
	signer := types.LatestSignerForChainID(big.NewInt(8453))
	from, err := types.Sender(signer, tx)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	want, _ := svc.Address(context.Background())
	if from != want {
		t.Fatalf("sender mismatch: got %s want %s", from.Hex(), want.Hex())
	}

	var recs []TransactionRecord
	if err := db.Find(&recs).Error; err != nil {
		t.Fatalf("query records: %v", err)
	}
	if len(recs) != 1 || recs[0].Status != TxStatusSubmitted || recs[0].TxHash != hash {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestSendNative_FeeCapNeverBelowTip(t *testing.T) {
	// 0.5 gwei suggested: doubling it still undercuts the 1.5 gwei tip, so
	// the fee cap must be lifted to the tip or nodes reject the tx.
	rpc := &fakeRPC{gasPrice: big.NewInt(500_000_000)}
	svc, _ := newTestService(t, rpc)

	if err := svc.ConfigureChain(context.Background(), testAdmin, ChainConfig{
		ChainID: 8453, ChainName: "Base", RPCURL: "https://mainnet.base.org", NativeSymbol: "ETH", Decimals: 18,
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	if _, err := svc.SendNative(context.Background(), testAdmin, 8453,
		"0x000000000000000000000000000000000000dEaD", "1000000000000000"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(rpc.sent))
	}

	tx := rpc.sent[0]
	if tx.GasFeeCap().Cmp(tx.GasTipCap()) < 0 {
		t.Fatalf("fee cap %s below tip %s", tx.GasFeeCap(), tx.GasTipCap())
	}
	if tx.GasFeeCap().Cmp(big.NewInt(priorityFeeWei)) != 0 {
		t.Fatalf("fee cap %s, want clamped to the tip", tx.GasFeeCap())
	}
}

func TestSendNative_NonceFailureLeavesNoRecord(t *testing.T) {
	rpc := &fakeRPC{nonceErr: errors.New("node down")}
	svc, db := newTestService(t, rpc)

	if err := svc.ConfigureChain(context.Background(), testAdmin, ChainConfig{
		ChainID: 1, ChainName: "Ethereum Mainnet", RPCURL: "https://example.invalid", NativeSymbol: "ETH", Decimals: 18,
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	_, err := svc.SendNative(context.Background(), testAdmin, 1,
		"0x000000000000000000000000000000000000dEaD", "1")
	if !errors.Is(err, common.ErrNonceFetchFailed) {
		t.Fatalf("expected ErrNonceFetchFailed, got %v", err)
	}

	var n int64
	if err := db.Model(&TransactionRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no records after aborted send, got %d", n)
	}
}

func TestSendNative_RejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t, &fakeRPC{})

	if err := svc.ConfigureChain(context.Background(), testAdmin, ChainConfig{
		ChainID: 1, ChainName: "Ethereum Mainnet", RPCURL: "https://example.invalid", NativeSymbol: "ETH", Decimals: 18,
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	cases := []struct {
		name string
		to   string
		amt  string
	}{
		{"bad address", "not-an-address", "1"},
		{"zero amount", "0x000000000000000000000000000000000000dEaD", "0"},
		{"negative amount", "0x000000000000000000000000000000000000dEaD", "-5"},
		{"non numeric", "0x000000000000000000000000000000000000dEaD", "1.5e18"},
	}
	for _, tc := range cases {
		_, err := svc.SendNative(context.Background(), testAdmin, 1, tc.to, tc.amt)
		if !errors.Is(err, common.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestSendNative_NonAdmin(t *testing.T) {
	svc, _ := newTestService(t, &fakeRPC{})

	_, err := svc.SendNative(context.Background(), "someone-else", 1,
		"0x000000000000000000000000000000000000dEaD", "1")
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestWalletInfo_KnownAndConfiguredNames(t *testing.T) {
	svc, _ := newTestService(t, &fakeRPC{})

	info, err := svc.WalletInfo(context.Background(), 42161)
	if err != nil {
		t.Fatalf("wallet info: %v", err)
	}
	if info.ChainName != "Arbitrum One" {
		t.Fatalf("unexpected chain name %q", info.ChainName)
	}

	if err := svc.ConfigureChain(context.Background(), testAdmin, ChainConfig{
		ChainID: 42161, ChainName: "Arbitrum", RPCURL: "https://arb1.example", NativeSymbol: "ETH", Decimals: 18,
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	info, err = svc.WalletInfo(context.Background(), 42161)
	if err != nil {
		t.Fatalf("wallet info: %v", err)
	}
	if info.ChainName != "Arbitrum" {
		t.Fatalf("configured name should win, got %q", info.ChainName)
	}
}
