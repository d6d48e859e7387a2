package social

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/ai"
	"github.com/coo-agent/coo-backend/internal/common"
)

var defaultAutoPostTopics = agentcfg.StringList{
	"Internet Computer blockchain",
	"decentralized AI",
	"Web3 technology",
	"on-chain AI agents",
}

// Service is the admin surface over social integration: credential
// configuration, manual and scheduled posting, and autonomous posting. The
// poller owns the inbound side.
type Service struct {
	repo     *Repo
	cfg      *agentcfg.Service
	registry *ai.Registry
	limiter  RateLimiter
	twitter  *TwitterClient
	discord  *DiscordClient
	poller   *Poller
	queue    PostEnqueuer
}

func NewService(repo *Repo, cfg *agentcfg.Service, registry *ai.Registry, limiter RateLimiter, twitter *TwitterClient, discord *DiscordClient, poller *Poller, queue PostEnqueuer) *Service {
	return &Service{
		repo:     repo,
		cfg:      cfg,
		registry: registry,
		limiter:  limiter,
		twitter:  twitter,
		discord:  discord,
		poller:   poller,
		queue:    queue,
	}
}

// ConfigureTwitter seals the OAuth credentials into the vault and marks the
// platform configured. Credentials never land in the settings row.
func (s *Service) ConfigureTwitter(ctx context.Context, principal string, creds TwitterCredentials) error {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	if creds.APIKey == "" || creds.APISecret == "" || creds.AccessToken == "" || creds.AccessTokenSecret == "" {
		return fmt.Errorf("%w: all four twitter credentials are required", common.ErrValidation)
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := s.cfg.StoreSecret(ctx, principal, agentcfg.SecretTwitterCredentials, payload); err != nil {
		return err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	settings.TwitterConfigured = true
	settings.TwitterUserID = ""
	settings.TwitterLastMentionID = ""
	return s.repo.SaveSettings(ctx, settings)
}

// ConfigureDiscord seals the bot token and records the webhook and channel
// set. Token may be empty when only webhook posting is wanted.
func (s *Service) ConfigureDiscord(ctx context.Context, principal, botToken, webhookURL string, channelIDs []string) error {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	if botToken == "" && webhookURL == "" {
		return fmt.Errorf("%w: bot token or webhook url is required", common.ErrValidation)
	}
	if botToken != "" {
		if err := s.cfg.StoreSecret(ctx, principal, agentcfg.SecretDiscordBotToken, []byte(botToken)); err != nil {
			return err
		}
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	settings.DiscordConfigured = true
	settings.DiscordWebhookURL = webhookURL
	settings.DiscordChannelIDs = channelIDs
	return s.repo.SaveSettings(ctx, settings)
}

func (s *Service) SetEnabledPlatforms(ctx context.Context, principal string, platforms []string) error {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	for _, p := range platforms {
		if !ValidPlatform(p) {
			return fmt.Errorf("%w: unknown platform %q", common.ErrValidation, p)
		}
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	settings.EnabledPlatforms = platforms
	return s.repo.SaveSettings(ctx, settings)
}

func (s *Service) SetAutoReply(ctx context.Context, principal string, enabled bool) error {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	settings.AutoReply = enabled
	return s.repo.SaveSettings(ctx, settings)
}

func validateContent(platform, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", common.ErrValidation)
	}
	switch platform {
	case PlatformTwitter:
		if len(content) > TwitterMaxChars {
			return fmt.Errorf("%w: twitter content exceeds %d characters", common.ErrValidation, TwitterMaxChars)
		}
	case PlatformDiscord:
		if len(content) > DiscordMaxChars {
			return fmt.Errorf("%w: discord content exceeds %d characters", common.ErrValidation, DiscordMaxChars)
		}
	default:
		return fmt.Errorf("%w: unknown platform %q", common.ErrValidation, platform)
	}
	return nil
}

// PostNow publishes immediately, bypassing the schedule and the dedup set.
// Admin only; the explicit caller intent is the dedup.
func (s *Service) PostNow(ctx context.Context, principal, platform, content string) (string, error) {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return "", err
	}
	if err := validateContent(platform, content); err != nil {
		return "", err
	}

	switch platform {
	case PlatformTwitter:
		if err := s.limiter.Allow(ctx, "social:twitter", TwitterHourlyLimit, time.Hour); err != nil {
			return "", err
		}
		return s.twitter.Post(ctx, content, "")
	case PlatformDiscord:
		if err := s.limiter.Allow(ctx, "social:discord", DiscordHourlyLimit, time.Hour); err != nil {
			return "", err
		}
		settings, err := s.repo.GetSettings(ctx)
		if err != nil {
			return "", err
		}
		if settings.DiscordWebhookURL != "" {
			if err := s.discord.PostWebhook(ctx, settings.DiscordWebhookURL, content); err != nil {
				return "", err
			}
			return "webhook", nil
		}
		if len(settings.DiscordChannelIDs) > 0 {
			return s.discord.PostMessage(ctx, settings.DiscordChannelIDs[0], content)
		}
		return "", fmt.Errorf("%w: no webhook or channel configured", common.ErrValidation)
	}
	return "", fmt.Errorf("%w: unknown platform %q", common.ErrValidation, platform)
}

// SchedulePost queues one post for the delivery worker. The id is a ULID so
// rows sort by creation time.
func (s *Service) SchedulePost(ctx context.Context, principal, platform, content string, at time.Time, replyToID, channelID string) (string, error) {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return "", err
	}
	if err := validateContent(platform, content); err != nil {
		return "", err
	}

	post := &ScheduledPost{
		ID:          ulid.Make().String(),
		Platform:    platform,
		Content:     content,
		ScheduledAt: at,
		Status:      PostStatusPending,
		ReplyToID:   replyToID,
		ChannelID:   channelID,
	}
	if err := s.repo.InsertPost(ctx, post); err != nil {
		return "", err
	}
	return post.ID, nil
}

func (s *Service) CancelScheduledPost(ctx context.Context, principal, id string) error {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	removed, err := s.repo.DeletePending(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: post %s not found or not pending", common.ErrNotFound, id)
	}
	return nil
}

func (s *Service) ScheduledPosts(ctx context.Context) ([]ScheduledPost, error) {
	return s.repo.ListPosts(ctx)
}

func (s *Service) Inbox(ctx context.Context, limit int) ([]InboxMessage, error) {
	return s.repo.ListInbox(ctx, limit)
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return Status{}, err
	}
	pending, err := s.repo.CountPendingPosts(ctx)
	if err != nil {
		return Status{}, err
	}
	unreplied, err := s.repo.CountUnreplied(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		TwitterConfigured:   settings.TwitterConfigured,
		DiscordConfigured:   settings.DiscordConfigured,
		EnabledPlatforms:    settings.EnabledPlatforms,
		AutoReply:           settings.AutoReply,
		PollingActive:       s.poller != nil && s.poller.Running(),
		LastTwitterPoll:     settings.TwitterLastPollAt,
		LastDiscordPoll:     settings.DiscordLastPollAt,
		PendingPosts:        pending,
		UnprocessedMessages: unreplied,
	}, nil
}

// StartAutoPosting enables autonomous posting. The interval floor keeps the
// account inside free-tier API budgets.
func (s *Service) StartAutoPosting(ctx context.Context, principal string, intervalSeconds int64, topics []string) error {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	if intervalSeconds < 3600 {
		return fmt.Errorf("%w: minimum interval is 3600 seconds", common.ErrValidation)
	}

	cfg, err := s.repo.GetAutoPostConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Enabled = true
	cfg.IntervalSeconds = intervalSeconds
	if len(topics) > 0 {
		cfg.Topics = topics
	} else {
		cfg.Topics = defaultAutoPostTopics
	}
	return s.repo.SaveAutoPostConfig(ctx, cfg)
}

func (s *Service) StopAutoPosting(ctx context.Context, principal string) error {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	cfg, err := s.repo.GetAutoPostConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Enabled = false
	return s.repo.SaveAutoPostConfig(ctx, cfg)
}

func (s *Service) AutoPostConfig(ctx context.Context) (*AutoPostConfig, error) {
	return s.repo.GetAutoPostConfig(ctx)
}

// TriggerAutoPost generates one tweet about a rotating topic and posts it.
// Admin only; the timer path calls AutoPostTick instead.
func (s *Service) TriggerAutoPost(ctx context.Context, principal string) (string, error) {
	if err := s.cfg.RequireAdmin(ctx, principal); err != nil {
		return "", err
	}
	return s.generateAndPost(ctx)
}

// AutoPostTick runs one autonomous post if enabled and due.
func (s *Service) AutoPostTick(ctx context.Context) error {
	cfg, err := s.repo.GetAutoPostConfig(ctx)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return nil
	}
	if time.Since(cfg.LastPostAt) < time.Duration(cfg.IntervalSeconds)*time.Second {
		return nil
	}
	_, err = s.generateAndPost(ctx)
	return err
}

func (s *Service) generateAndPost(ctx context.Context) (string, error) {
	cfg, err := s.repo.GetAutoPostConfig(ctx)
	if err != nil {
		return "", err
	}
	if !cfg.Enabled {
		return "", fmt.Errorf("%w: auto-posting is disabled", common.ErrValidation)
	}
	topics := cfg.Topics
	if len(topics) == 0 {
		topics = defaultAutoPostTopics
	}
	topic := topics[rand.Intn(len(topics))]

	character, err := s.cfg.Character(ctx)
	if err != nil {
		return "", err
	}
	agentCfg, err := s.cfg.Config(ctx)
	if err != nil {
		return "", err
	}
	provider, err := s.registry.Get(ctx, agentCfg.Provider)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`%s

Generate a single engaging tweet (max 280 characters) about: %s

Rules:
- Be informative and friendly
- Include relevant hashtags (1-2 max)
- Don't use emojis excessively
- Make it feel natural, not promotional
- Vary the style (question, fact, tip, thought)

Output only the tweet text, nothing else.`, character.SystemPrompt, topic)

	text, err := provider.Chat(ctx, []ai.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}
	tweet := truncate(strings.TrimSpace(text), TwitterMaxChars)

	if err := s.limiter.Allow(ctx, "social:twitter", TwitterHourlyLimit, time.Hour); err != nil {
		return "", err
	}
	id, err := s.twitter.Post(ctx, tweet, "")
	if err != nil {
		return "", err
	}

	cfg.LastPostAt = time.Now()
	if err := s.repo.SaveAutoPostConfig(ctx, cfg); err != nil {
		return id, err
	}
	return id, nil
}
