package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coo-agent/coo-backend/internal/common"
)

const discordAPIBase = "https://discord.com/api/v10"

// TokenSource resolves the sealed bot token at call time.
type TokenSource func(ctx context.Context) (string, error)

// DiscordClient talks to the Discord bot API and optional webhooks. Unlike
// Twitter there is no content-hash rejection on Discord's side, so duplicate
// delivery through this client is possible when the caller's claim step is
// bypassed; the poller's inbox claim is the only protection.
type DiscordClient struct {
	BaseURL string
	Token   TokenSource
	Client  *http.Client
}

func NewDiscordClient(token TokenSource, timeout time.Duration) *DiscordClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DiscordClient{
		BaseURL: discordAPIBase,
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

type discordMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Author  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
}

// ChannelMessages fetches up to 20 messages from one channel, skipping bot
// authors, returned oldest first. External ids are "<channel>:<message>" so
// the same message id in different channels stays distinct.
func (c *DiscordClient) ChannelMessages(ctx context.Context, channelID, afterID string) ([]InboxMessage, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/channels/%s/messages?limit=20", c.BaseURL, channelID)
	if afterID != "" {
		url += "&after=" + afterID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+token)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("discord channel %s: status %d", channelID, status)
	}

	var decoded []discordMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("discord response: %w", err)
	}

	// Discord returns newest first.
	out := make([]InboxMessage, 0, len(decoded))
	for i := len(decoded) - 1; i >= 0; i-- {
		m := decoded[i]
		if m.Author.Bot {
			continue
		}
		out = append(out, InboxMessage{
			Platform:       PlatformDiscord,
			ExternalID:     channelID + ":" + m.ID,
			AuthorID:       m.Author.ID,
			AuthorName:     m.Author.Username,
			Content:        m.Content,
			ConversationID: channelID,
		})
	}
	return out, nil
}

// PostMessage sends one message to a channel through the bot API and returns
// the created message id.
func (c *DiscordClient) PostMessage(ctx context.Context, channelID, content string) (string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/channels/%s/messages", c.BaseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bot "+token)
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("discord post to %s: status %d", channelID, status)
	}

	var decoded discordMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("discord response: %w", err)
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("discord post: no message id in response")
	}
	return decoded.ID, nil
}

// PostWebhook delivers content through a webhook URL. Needs no token.
func (c *DiscordClient) PostWebhook(ctx context.Context, webhookURL, content string) error {
	b, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, status, err := c.do(req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("discord webhook: status %d", status)
	}
	return nil
}

func (c *DiscordClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%w: discord call", common.ErrTimeout)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
