package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/common"
)

// Minimum transfer is the ledger fee: anything below cannot clear.
const (
	minSendE8s     = 10_000
	transferFeeE8s = 10_000
)

type Service struct {
	repo      *Repo
	ledger    Ledger
	gate      *agentcfg.Service
	principal string // the service's own identity
	address   string
}

func NewService(repo *Repo, ledger Ledger, gate *agentcfg.Service, servicePrincipal string) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		gate:      gate,
		principal: servicePrincipal,
		address:   AccountIdentifier(servicePrincipal),
	}
}

func (s *Service) Address() string { return s.address }

// CheckBalance is always a live ledger read; no local cache.
func (s *Service) CheckBalance(ctx context.Context) (uint64, error) {
	return s.ledger.AccountBalance(ctx, s.address)
}

func (s *Service) Info() WalletInfo {
	return WalletInfo{Address: s.address, Principal: s.principal}
}

func (s *Service) Status(ctx context.Context) (WalletInfo, error) {
	balance, err := s.CheckBalance(ctx)
	if err != nil {
		return WalletInfo{}, err
	}
	return WalletInfo{
		Address:           s.address,
		Principal:         s.principal,
		BalanceE8s:        balance,
		LastBalanceUpdate: time.Now().Unix(),
	}, nil
}

// Send moves e8s through the ledger. Validation happens before any ledger
// call; ledger errors are returned to the caller and never retried (a
// duplicate retry is indistinguishable from a second transfer). Only a
// ledger-returned rejection leaves a failed record; a transport failure is
// an unknown outcome and leaves no record at all, since a "failed" row for a
// transfer that may have landed invites a resubmit that doubles it.
func (s *Service) Send(ctx context.Context, principal, toAddress string, amountE8s uint64, memo uint64) (uint64, error) {
	if err := s.gate.RequireAdmin(ctx, principal); err != nil {
		return 0, err
	}

	if amountE8s < minSendE8s {
		return 0, fmt.Errorf("%w: amount too small, minimum is %d e8s", common.ErrValidation, minSendE8s)
	}
	raw, err := hex.DecodeString(toAddress)
	if err != nil {
		return 0, fmt.Errorf("%w: destination is not hex", common.ErrValidation)
	}
	if len(raw) != 32 {
		return 0, fmt.Errorf("%w: destination must be a 32-byte account identifier", common.ErrValidation)
	}

	blockHeight, err := s.ledger.Transfer(ctx, TransferArgs{
		ToAccount: toAddress,
		AmountE8s: amountE8s,
		FeeE8s:    transferFeeE8s,
		Memo:      memo,
	})
	if err != nil {
		if errors.Is(err, ErrTransferRejected) {
			_ = s.repo.InsertRecord(ctx, &TransactionRecord{
				Direction: DirectionSend,
				AmountE8s: amountE8s,
				To:        toAddress,
				Memo:      memo,
				Status:    StatusFailed,
				Error:     err.Error(),
			})
		}
		return 0, err
	}

	if err := s.repo.InsertRecord(ctx, &TransactionRecord{
		Direction:   DirectionSend,
		AmountE8s:   amountE8s,
		To:          toAddress,
		Memo:        memo,
		Status:      StatusCompleted,
		BlockHeight: &blockHeight,
	}); err != nil {
		return 0, err
	}

	return blockHeight, nil
}

// History returns records newest first, optionally limited.
func (s *Service) History(ctx context.Context, limit int) ([]TransactionRecord, error) {
	return s.repo.ListRecent(ctx, limit)
}

// RecordCount returns the total number of retained transaction records,
// which can exceed a limited History page.
func (s *Service) RecordCount(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
