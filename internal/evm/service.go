package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/common"
)

const (
	nativeTransferGas = 21_000
	priorityFeeWei    = 1_500_000_000 // 1.5 gwei tip
)

// chainNames covers the well-known networks so wallet info reads sensibly
// even before a chain is configured for sending.
var chainNames = map[uint64]string{
	1:        "Ethereum Mainnet",
	10:       "Optimism",
	137:      "Polygon",
	8453:     "Base",
	42161:    "Arbitrum One",
	84532:    "Base Sepolia (Testnet)",
	11155111: "Sepolia (Testnet)",
}

// Service is the multichain EVM wallet. One address, derived from the
// threshold signer's shared public key, serves every configured chain.
type Service struct {
	repo   *Repo
	signer Signer
	dial   Dialer
	gate   *agentcfg.Service

	mu      sync.Mutex
	address *ethcommon.Address // derived once, then cached
	clients map[uint64]RPC
}

func NewService(repo *Repo, signer Signer, dial Dialer, gate *agentcfg.Service) *Service {
	return &Service{
		repo:    repo,
		signer:  signer,
		dial:    dial,
		gate:    gate,
		clients: make(map[uint64]RPC),
	}
}

// Address derives the externally-owned-account address from the shared
// public key. EVM addresses are chain-agnostic, so the same address is
// returned for every chain.
func (s *Service) Address(ctx context.Context) (ethcommon.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != nil {
		return *s.address, nil
	}

	raw, err := s.signer.PublicKey(ctx)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("%w: public key: %v", common.ErrSigningFailed, err)
	}

	pub, err := parseSEC1PublicKey(raw)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("%w: %v", common.ErrSigningFailed, err)
	}

	addr := crypto.PubkeyToAddress(*pub)
	s.address = &addr
	return addr, nil
}

func parseSEC1PublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	switch len(raw) {
	case 33:
		return crypto.DecompressPubkey(raw)
	case 65:
		return crypto.UnmarshalPubkey(raw)
	default:
		return nil, fmt.Errorf("unexpected public key length %d", len(raw))
	}
}

func (s *Service) client(ctx context.Context, chainID uint64, rpcURL string) (RPC, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[chainID]; ok {
		return c, nil
	}
	c, err := s.dial(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	s.clients[chainID] = c
	return c, nil
}

// ConfigureChain upserts one chain. No chain may be used by send/balance
// before it has been configured.
func (s *Service) ConfigureChain(ctx context.Context, principal string, cfg ChainConfig) error {
	if err := s.gate.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("%w: chain_id must be non-zero", common.ErrValidation)
	}
	if strings.TrimSpace(cfg.RPCURL) == "" || strings.TrimSpace(cfg.ChainName) == "" || strings.TrimSpace(cfg.NativeSymbol) == "" {
		return fmt.Errorf("%w: chain_name, rpc_url and native_symbol are required", common.ErrValidation)
	}

	// Drop any cached client for the old endpoint.
	s.mu.Lock()
	delete(s.clients, cfg.ChainID)
	s.mu.Unlock()

	return s.repo.UpsertChain(ctx, &cfg)
}

func (s *Service) Chains(ctx context.Context) ([]ChainConfig, error) {
	return s.repo.ListChains(ctx)
}

func (s *Service) chainConfig(ctx context.Context, chainID uint64) (*ChainConfig, error) {
	cfg, err := s.repo.GetChain(ctx, chainID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: chain %d, use configure_evm_chain first", common.ErrChainNotConfigured, chainID)
		}
		return nil, err
	}
	return cfg, nil
}

// Balance reads the native balance on one chain, returned as a hex-wei
// quantity string.
func (s *Service) Balance(ctx context.Context, chainID uint64) (string, error) {
	cfg, err := s.chainConfig(ctx, chainID)
	if err != nil {
		return "", err
	}
	addr, err := s.Address(ctx)
	if err != nil {
		return "", err
	}
	rpc, err := s.client(ctx, chainID, cfg.RPCURL)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", common.ErrBroadcastFailed, cfg.RPCURL, err)
	}
	bal, err := rpc.BalanceAt(ctx, addr, nil)
	if err != nil {
		return "", fmt.Errorf("balance query: %w", err)
	}
	return "0x" + bal.Text(16), nil
}

func (s *Service) WalletInfo(ctx context.Context, chainID uint64) (WalletInfo, error) {
	addr, err := s.Address(ctx)
	if err != nil {
		return WalletInfo{}, err
	}

	name := chainNames[chainID]
	if cfg, err := s.repo.GetChain(ctx, chainID); err == nil {
		name = cfg.ChainName
	}
	if name == "" {
		name = "Unknown Chain"
	}

	return WalletInfo{Address: addr.Hex(), ChainID: chainID, ChainName: name}, nil
}

// SendNative builds, signs and broadcasts a native transfer. Every step
// failure before broadcast aborts with a typed error and no local record; a
// failure after broadcast is an unknown outcome and is never re-sent
// automatically.
func (s *Service) SendNative(ctx context.Context, principal string, chainID uint64, toAddress, amountWei string) (string, error) {
	if err := s.gate.RequireAdmin(ctx, principal); err != nil {
		return "", err
	}

	cfg, err := s.chainConfig(ctx, chainID)
	if err != nil {
		return "", err
	}
	if !ethcommon.IsHexAddress(toAddress) {
		return "", fmt.Errorf("%w: invalid destination address", common.ErrValidation)
	}
	value, ok := new(big.Int).SetString(amountWei, 10)
	if !ok || value.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount_wei must be a positive decimal", common.ErrValidation)
	}

	from, err := s.Address(ctx)
	if err != nil {
		return "", err
	}
	rpc, err := s.client(ctx, chainID, cfg.RPCURL)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", common.ErrNonceFetchFailed, cfg.RPCURL, err)
	}

	nonce, err := rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNonceFetchFailed, err)
	}
	gasPrice, err := rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: fee data: %v", common.ErrNonceFetchFailed, err)
	}

	tipCap := big.NewInt(priorityFeeWei)
	// On cheap chains twice the suggested price can undercut the fixed tip,
	// which nodes reject; the fee cap must cover the tip.
	feeCap := new(big.Int).Mul(gasPrice, big.NewInt(2))
	if feeCap.Cmp(tipCap) < 0 {
		feeCap = new(big.Int).Set(tipCap)
	}

	to := ethcommon.HexToAddress(toAddress)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       nativeTransferGas,
		To:        &to,
		Value:     value,
	})

	signedTx, err := s.signTx(ctx, tx, chainID, from)
	if err != nil {
		return "", err
	}

	if err := rpc.SendTransaction(ctx, signedTx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: broadcast", common.ErrTimeout)
		}
		return "", fmt.Errorf("%w: %v", common.ErrBroadcastFailed, err)
	}

	txHash := signedTx.Hash().Hex()
	if err := s.repo.InsertRecord(ctx, &TransactionRecord{
		ChainID:  chainID,
		TxHash:   txHash,
		To:       to.Hex(),
		ValueWei: amountWei,
		Status:   TxStatusSubmitted,
	}); err != nil {
		// Broadcast happened; surface the hash anyway.
		return txHash, err
	}

	return txHash, nil
}

// signTx obtains a threshold signature over the EIP-1559 digest and recovers
// the correct recovery id by checking both candidates against the wallet
// address.
func (s *Service) signTx(ctx context.Context, tx *types.Transaction, chainID uint64, from ethcommon.Address) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	digest := signer.Hash(tx)

	sig, err := s.signer.Sign(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSigningFailed, err)
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("%w: unexpected signature length %d", common.ErrSigningFailed, len(sig))
	}

	for v := byte(0); v <= 1; v++ {
		full := append(append([]byte{}, sig...), v)
		pub, err := crypto.SigToPub(digest[:], full)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == from {
			return tx.WithSignature(signer, full)
		}
	}
	return nil, fmt.Errorf("%w: signature does not recover to wallet address", common.ErrSigningFailed)
}

// History returns records newest first, optionally limited.
func (s *Service) History(ctx context.Context, limit int) ([]TransactionRecord, error) {
	return s.repo.ListRecent(ctx, limit)
}
