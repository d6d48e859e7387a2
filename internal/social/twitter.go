package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/coo-agent/coo-backend/internal/common"
)

const twitterAPIBase = "https://api.twitter.com/2"

// CredentialSource resolves the sealed Twitter credentials at call time so
// plaintext only lives for the duration of one request.
type CredentialSource func(ctx context.Context) (TwitterCredentials, error)

// TwitterClient talks to the Twitter v2 API with OAuth 1.0a user-context
// auth. Posting is content-hash protected on Twitter's side: a duplicate
// tweet is rejected by the API, which the client reports as success. That
// makes Twitter the safe platform for unattended automation.
type TwitterClient struct {
	BaseURL string
	Creds   CredentialSource
	Client  *http.Client
	Now     func() time.Time
}

func NewTwitterClient(creds CredentialSource, timeout time.Duration) *TwitterClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TwitterClient{
		BaseURL: twitterAPIBase,
		Creds:   creds,
		Client:  &http.Client{Timeout: timeout},
		Now:     time.Now,
	}
}

type tweetReq struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
}

type tweetResp struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Post publishes one tweet, optionally as a reply. A duplicate-content
// rejection from the API means an identical tweet already went out, so it is
// returned as success with an empty id.
func (c *TwitterClient) Post(ctx context.Context, text, replyToID string) (string, error) {
	creds, err := c.Creds(ctx)
	if err != nil {
		return "", err
	}

	reqBody := tweetReq{Text: text}
	if replyToID != "" {
		reqBody.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: replyToID}
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := c.BaseURL + "/tweets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", oauth1Header(http.MethodPost, url, creds, nil, c.Now()))
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}

	var decoded tweetResp
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("twitter response: %w", err)
	}

	if status < 200 || status >= 300 {
		if isDuplicateContent(decoded) {
			return "", nil
		}
		return "", fmt.Errorf("twitter post: %s", apiErrorText(decoded, status))
	}
	if len(decoded.Errors) > 0 {
		if isDuplicateContent(decoded) {
			return "", nil
		}
		return "", fmt.Errorf("twitter post: %s", decoded.Errors[0].Message)
	}
	if decoded.Data.ID == "" {
		return "", fmt.Errorf("twitter post: no tweet id in response")
	}
	return decoded.Data.ID, nil
}

func isDuplicateContent(r tweetResp) bool {
	if strings.Contains(strings.ToLower(r.Detail), "duplicate content") {
		return true
	}
	for _, e := range r.Errors {
		if strings.Contains(strings.ToLower(e.Message), "duplicate content") {
			return true
		}
	}
	return false
}

func apiErrorText(r tweetResp, status int) string {
	if r.Detail != "" {
		return r.Detail
	}
	if len(r.Errors) > 0 {
		return r.Errors[0].Message
	}
	return fmt.Sprintf("status %d", status)
}

type usersMeResp struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// UserID fetches the authenticated account's id.
func (c *TwitterClient) UserID(ctx context.Context) (string, error) {
	creds, err := c.Creds(ctx)
	if err != nil {
		return "", err
	}

	url := c.BaseURL + "/users/me"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", oauth1Header(http.MethodGet, url, creds, nil, c.Now()))

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("twitter users/me: status %d", status)
	}

	var decoded usersMeResp
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("twitter response: %w", err)
	}
	if decoded.Data.ID == "" {
		return "", fmt.Errorf("twitter users/me: no user id")
	}
	return decoded.Data.ID, nil
}

type mentionsResp struct {
	Data []struct {
		ID             string `json:"id"`
		Text           string `json:"text"`
		AuthorID       string `json:"author_id"`
		ConversationID string `json:"conversation_id"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// Mentions fetches recent mentions of the account, newest first, optionally
// only those newer than sinceID.
func (c *TwitterClient) Mentions(ctx context.Context, userID, sinceID string) ([]InboxMessage, error) {
	creds, err := c.Creds(ctx)
	if err != nil {
		return nil, err
	}

	baseURL := fmt.Sprintf("%s/users/%s/mentions", c.BaseURL, userID)
	params := map[string]string{
		"tweet.fields": "author_id,conversation_id,created_at",
		"expansions":   "author_id",
		"user.fields":  "username",
		"max_results":  "10",
	}
	if sinceID != "" {
		params["since_id"] = sinceID
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}
	fullURL := baseURL + "?" + strings.Join(pairs, "&")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", oauth1Header(http.MethodGet, baseURL, creds, params, c.Now()))

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("twitter mentions: status %d", status)
	}

	var decoded mentionsResp
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("twitter response: %w", err)
	}

	usernames := make(map[string]string, len(decoded.Includes.Users))
	for _, u := range decoded.Includes.Users {
		usernames[u.ID] = u.Username
	}

	out := make([]InboxMessage, 0, len(decoded.Data))
	for _, tw := range decoded.Data {
		name := usernames[tw.AuthorID]
		if name == "" {
			name = tw.AuthorID
		}
		out = append(out, InboxMessage{
			Platform:       PlatformTwitter,
			ExternalID:     tw.ID,
			AuthorID:       tw.AuthorID,
			AuthorName:     name,
			Content:        tw.Text,
			ConversationID: tw.ConversationID,
		})
	}
	return out, nil
}

func (c *TwitterClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%w: twitter call", common.ErrTimeout)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
