package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPC is the per-chain node collaborator: the subset of ethclient the wallet
// needs. Balance and nonce queries are idempotent reads; SendTransaction is
// the one call whose remote side effect may be duplicated by the substrate,
// which is why the service never re-broadcasts on an ambiguous failure.
type RPC interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Dialer opens an RPC connection to one chain's endpoint.
type Dialer func(ctx context.Context, rpcURL string) (RPC, error)

// DialEthclient is the production dialer.
func DialEthclient(ctx context.Context, rpcURL string) (RPC, error) {
	return ethclient.DialContext(ctx, rpcURL)
}
