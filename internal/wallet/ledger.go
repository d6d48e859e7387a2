package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coo-agent/coo-backend/internal/common"
)

// TransferArgs mirrors the ledger transfer contract.
type TransferArgs struct {
	ToAccount string `json:"to_account"`
	AmountE8s uint64 `json:"amount_e8s"`
	FeeE8s    uint64 `json:"fee_e8s"`
	Memo      uint64 `json:"memo"`
}

// ErrTransferRejected marks a rejection the ledger itself returned
// (insufficient funds, duplicate window, bad fee). Only this class of error
// means the transfer definitively did not happen; a transport error leaves
// the outcome unknown.
var ErrTransferRejected = errors.New("transfer rejected")

// Ledger is the native-asset ledger collaborator. Rejections wrap
// ErrTransferRejected; the service never retries a transfer.
type Ledger interface {
	AccountBalance(ctx context.Context, accountHex string) (uint64, error)
	Transfer(ctx context.Context, args TransferArgs) (blockHeight uint64, err error)
}

// HTTPLedger talks to the ledger gateway over JSON.
type HTTPLedger struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPLedger(baseURL string, timeout time.Duration) *HTTPLedger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPLedger{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type balanceResp struct {
	E8s   uint64 `json:"e8s"`
	Error string `json:"error,omitempty"`
}

type transferResp struct {
	BlockHeight uint64 `json:"block_height"`
	Error       string `json:"error,omitempty"`
}

func (l *HTTPLedger) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: ledger call", common.ErrTimeout)
		}
		return fmt.Errorf("ledger call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ledger call: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (l *HTTPLedger) AccountBalance(ctx context.Context, accountHex string) (uint64, error) {
	var out balanceResp
	if err := l.post(ctx, "/account_balance", map[string]string{"account": accountHex}, &out); err != nil {
		return 0, err
	}
	if out.Error != "" {
		return 0, errors.New(out.Error)
	}
	return out.E8s, nil
}

func (l *HTTPLedger) Transfer(ctx context.Context, args TransferArgs) (uint64, error) {
	var out transferResp
	if err := l.post(ctx, "/transfer", args, &out); err != nil {
		return 0, err
	}
	if out.Error != "" {
		return 0, fmt.Errorf("%w: %s", ErrTransferRejected, out.Error)
	}
	return out.BlockHeight, nil
}
