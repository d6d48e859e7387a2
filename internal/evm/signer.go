package evm

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coo-agent/coo-backend/internal/common"
)

// Signer is the threshold-ECDSA collaborator. The service supplies a digest
// and gets back a 64-byte r||s signature; no private key material ever
// exists on this side of the interface.
type Signer interface {
	// PublicKey returns the shared secp256k1 public key in SEC1 form
	// (33-byte compressed or 65-byte uncompressed).
	PublicKey(ctx context.Context) ([]byte, error)
	// Sign produces a 64-byte r||s signature over the digest.
	Sign(ctx context.Context, digest [32]byte) ([]byte, error)
}

// HTTPSigner talks to the threshold-signing service over JSON.
type HTTPSigner struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSigner(baseURL string, timeout time.Duration) *HTTPSigner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSigner{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type pubKeyResp struct {
	PublicKey string `json:"public_key"` // hex SEC1
	Error     string `json:"error,omitempty"`
}

type signReq struct {
	Digest string `json:"digest"` // hex, 32 bytes
}

type signResp struct {
	Signature string `json:"signature"` // hex, 64 bytes r||s
	Error     string `json:"error,omitempty"`
}

func (s *HTTPSigner) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: signer call", common.ErrTimeout)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("signer: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *HTTPSigner) PublicKey(ctx context.Context) ([]byte, error) {
	var out pubKeyResp
	if err := s.post(ctx, "/public_key", struct{}{}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, errors.New(out.Error)
	}
	return hex.DecodeString(out.PublicKey)
}

func (s *HTTPSigner) Sign(ctx context.Context, digest [32]byte) ([]byte, error) {
	var out signResp
	if err := s.post(ctx, "/sign", signReq{Digest: hex.EncodeToString(digest[:])}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, errors.New(out.Error)
	}
	sig, err := hex.DecodeString(out.Signature)
	if err != nil {
		return nil, err
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("signer: unexpected signature length %d", len(sig))
	}
	return sig, nil
}
