package ai

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

// onChainMessageLimit mirrors the model gateway's 10-message window.
const onChainMessageLimit = 10

// OnChainProvider calls the on-chain model gateway. It only exists in
// environments where the gateway URL is configured; the factory fails with
// ProviderUnavailable otherwise (local/dev).
type OnChainProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewOnChainProvider(baseURL string, timeout time.Duration) (*OnChainProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: on-chain model gateway not configured", common.ErrProviderUnavailable)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OnChainProvider{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}, nil
}

type onChainChatReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type onChainChatResp struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

func (p *OnChainProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) > onChainMessageLimit {
		messages = messages[len(messages)-onChainMessageLimit:]
	}

	b, err := json.Marshal(onChainChatReq{Model: "llama3.1:8b", Messages: messages})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/chat", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: on-chain model call", common.ErrTimeout)
		}
		return "", fmt.Errorf("%w: %v", common.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: on-chain model: status %d", common.ErrProvider, resp.StatusCode)
	}

	var decoded onChainChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrProvider, err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("%w: %s", common.ErrProvider, decoded.Error)
	}
	if decoded.Message.Content == "" {
		return "", fmt.Errorf("%w: no response content", common.ErrProvider)
	}
	return decoded.Message.Content, nil
}
