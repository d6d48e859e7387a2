package social

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/common"
)

// At most this many auto-replies are sent per poll cycle so one busy
// mention stream cannot drain the hourly budget in a single tick.
const maxRepliesPerTick = 3

type twitterAPI interface {
	UserID(ctx context.Context) (string, error)
	Mentions(ctx context.Context, userID, sinceID string) ([]InboxMessage, error)
	Post(ctx context.Context, text, replyToID string) (string, error)
}

type discordAPI interface {
	ChannelMessages(ctx context.Context, channelID, afterID string) ([]InboxMessage, error)
	PostMessage(ctx context.Context, channelID, content string) (string, error)
	PostWebhook(ctx context.Context, webhookURL, content string) error
}

// RateLimiter is the shared-window budget check. The redis-backed
// implementation makes the budget global across replicas.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) error
}

// Replier generates the auto-reply text for one inbound message. Satisfied
// by the chat service, which keys the conversation by the synthetic
// principal.
type Replier interface {
	Send(ctx context.Context, principal, text string) (string, error)
}

// PostEnqueuer hands due scheduled posts to the delivery worker.
type PostEnqueuer interface {
	PublishPost(ctx context.Context, postID string) error
}

// Poller runs the social tick: enqueue due scheduled posts, fetch inbound
// items for enabled platforms, claim each item into the inbox, and reply to
// claimed items when auto-reply is on.
//
// It is a cooperative timer task. Stop cancels the tick context, which is
// checked at the top of each tick; an in-flight tick always runs to
// completion.
type Poller struct {
	repo    *Repo
	cfg     *agentcfg.Service
	replier Replier
	limiter RateLimiter
	twitter twitterAPI
	discord discordAPI
	queue   PostEnqueuer

	mu       sync.Mutex
	cancel   context.CancelFunc
	interval time.Duration
}

func NewPoller(repo *Repo, cfg *agentcfg.Service, replier Replier, limiter RateLimiter, twitter twitterAPI, discord discordAPI, queue PostEnqueuer) *Poller {
	return &Poller{
		repo:    repo,
		cfg:     cfg,
		replier: replier,
		limiter: limiter,
		twitter: twitter,
		discord: discord,
		queue:   queue,
	}
}

// Start begins ticking at the given interval. Admin only. A running timer is
// replaced.
func (p *Poller) Start(ctx context.Context, principal string, interval time.Duration) error {
	if err := p.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", common.ErrValidation)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}

	tickCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.interval = interval

	go p.run(tickCtx, interval)
	return nil
}

// Stop cancels the timer. Takes effect before the next tick.
func (p *Poller) Stop(ctx context.Context, principal string) error {
	if err := p.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// Cancellation is only honored here, never mid-tick.
		if ctx.Err() != nil {
			return
		}
		if err := p.Tick(ctx); err != nil {
			log.Printf("social poll tick: %v", err)
		}
	}
}

// Trigger runs one tick now. Admin only.
func (p *Poller) Trigger(ctx context.Context, principal string) error {
	if err := p.cfg.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	return p.Tick(ctx)
}

// Tick is one full poll pass. Per-platform failures are logged and skipped
// so one platform's outage does not starve the other; the next tick retries
// naturally.
func (p *Poller) Tick(ctx context.Context) error {
	if err := p.enqueueDuePosts(ctx); err != nil {
		log.Printf("social poll: scheduled posts: %v", err)
	}

	settings, err := p.repo.GetSettings(ctx)
	if err != nil {
		return err
	}

	var claimed []InboxMessage

	if settings.TwitterConfigured && contains(settings.EnabledPlatforms, PlatformTwitter) {
		msgs, err := p.pollTwitter(ctx, settings)
		if err != nil {
			log.Printf("social poll: twitter: %v", err)
		} else {
			claimed = append(claimed, msgs...)
		}
	}

	if settings.DiscordConfigured && contains(settings.EnabledPlatforms, PlatformDiscord) {
		msgs, err := p.pollDiscord(ctx, settings)
		if err != nil {
			log.Printf("social poll: discord: %v", err)
		} else {
			claimed = append(claimed, msgs...)
		}
	}

	if err := p.repo.SavePollState(ctx, settings); err != nil {
		return err
	}

	if settings.AutoReply {
		p.replyToClaimed(ctx, settings, claimed)
	}
	return nil
}

func (p *Poller) enqueueDuePosts(ctx context.Context) error {
	if p.queue == nil {
		return nil
	}
	due, err := p.repo.DuePosts(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, post := range due {
		// Mark queued before publishing so a republish on the next tick
		// only happens if the publish itself failed.
		if err := p.repo.UpdatePostStatus(ctx, post.ID, PostStatusQueued, nil); err != nil {
			return err
		}
		if err := p.queue.PublishPost(ctx, post.ID); err != nil {
			if rbErr := p.repo.UpdatePostStatus(ctx, post.ID, PostStatusPending, nil); rbErr != nil {
				log.Printf("social poll: revert post %s: %v", post.ID, rbErr)
			}
			return err
		}
	}
	return nil
}

// pollTwitter fetches new mentions and claims them. The cursor on settings
// is advanced to the newest mention seen whether or not this run won the
// claims.
func (p *Poller) pollTwitter(ctx context.Context, settings *Settings) ([]InboxMessage, error) {
	if err := p.limiter.Allow(ctx, "social:twitter", TwitterHourlyLimit, time.Hour); err != nil {
		return nil, err
	}

	userID := settings.TwitterUserID
	if userID == "" {
		id, err := p.twitter.UserID(ctx)
		if err != nil {
			return nil, err
		}
		userID = id
		settings.TwitterUserID = id
	}

	mentions, err := p.twitter.Mentions(ctx, userID, settings.TwitterLastMentionID)
	if err != nil {
		return nil, err
	}

	var claimed []InboxMessage
	for i := range mentions {
		won, err := p.repo.ClaimInbox(ctx, &mentions[i])
		if err != nil {
			return claimed, err
		}
		if won {
			claimed = append(claimed, mentions[i])
		}
	}

	// Mentions arrive newest first.
	if len(mentions) > 0 {
		settings.TwitterLastMentionID = mentions[0].ExternalID
	}
	settings.TwitterLastPollAt = time.Now()
	return claimed, nil
}

func (p *Poller) pollDiscord(ctx context.Context, settings *Settings) ([]InboxMessage, error) {
	var claimed []InboxMessage
	if settings.DiscordCursors == nil {
		settings.DiscordCursors = StringMap{}
	}

	for _, channelID := range settings.DiscordChannelIDs {
		if err := p.limiter.Allow(ctx, "social:discord", DiscordHourlyLimit, time.Hour); err != nil {
			return claimed, err
		}

		msgs, err := p.discord.ChannelMessages(ctx, channelID, settings.DiscordCursors[channelID])
		if err != nil {
			log.Printf("social poll: discord channel %s: %v", channelID, err)
			continue
		}

		for i := range msgs {
			won, err := p.repo.ClaimInbox(ctx, &msgs[i])
			if err != nil {
				return claimed, err
			}
			if won {
				claimed = append(claimed, msgs[i])
			}
		}

		// Channel messages arrive oldest first; the cursor is the raw
		// message id of the newest one.
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1].ExternalID
			if idx := strings.LastIndex(last, ":"); idx >= 0 {
				last = last[idx+1:]
			}
			settings.DiscordCursors[channelID] = last
		}
	}
	settings.DiscordLastPollAt = time.Now()
	return claimed, nil
}

// replyToClaimed generates and posts replies for freshly claimed items, at
// most maxRepliesPerTick per tick. Reply failures are logged; the claim is
// already durable, so a failed reply is never retried for the same item.
func (p *Poller) replyToClaimed(ctx context.Context, settings *Settings, claimed []InboxMessage) {
	character, err := p.cfg.Character(ctx)
	if err != nil {
		log.Printf("social reply: character: %v", err)
		return
	}

	replies := 0
	for _, msg := range claimed {
		if replies >= maxRepliesPerTick {
			return
		}
		if !shouldRespond(character.Name, msg.Content) {
			continue
		}
		if err := p.replyTo(ctx, settings, msg); err != nil {
			log.Printf("social reply to %s/%s: %v", msg.Platform, msg.ExternalID, err)
			continue
		}
		if err := p.repo.MarkReplied(ctx, msg.ID); err != nil {
			log.Printf("social reply: mark %d: %v", msg.ID, err)
		}
		replies++
	}
}

func (p *Poller) replyTo(ctx context.Context, settings *Settings, msg InboxMessage) error {
	principal := msg.Platform + ":" + msg.AuthorID
	reply, err := p.replier.Send(ctx, principal, msg.Content)
	if err != nil {
		return err
	}

	switch msg.Platform {
	case PlatformTwitter:
		if err := p.limiter.Allow(ctx, "social:twitter", TwitterHourlyLimit, time.Hour); err != nil {
			return err
		}
		text := "@" + msg.AuthorName + " " + truncate(reply, 260)
		_, err := p.twitter.Post(ctx, text, msg.ExternalID)
		return err
	case PlatformDiscord:
		if err := p.limiter.Allow(ctx, "social:discord", DiscordHourlyLimit, time.Hour); err != nil {
			return err
		}
		text := "<@" + msg.AuthorID + "> " + truncate(reply, DiscordMaxChars-64)
		if msg.ConversationID != "" {
			_, err := p.discord.PostMessage(ctx, msg.ConversationID, text)
			return err
		}
		if settings.DiscordWebhookURL != "" {
			return p.discord.PostWebhook(ctx, settings.DiscordWebhookURL, text)
		}
		return fmt.Errorf("no channel or webhook for reply")
	}
	return fmt.Errorf("unknown platform %q", msg.Platform)
}

// shouldRespond filters inbound items down to the ones addressed at the
// agent: those mentioning the character by name or asking a question.
func shouldRespond(characterName, content string) bool {
	lower := strings.ToLower(content)
	name := strings.ToLower(characterName)
	return (name != "" && strings.Contains(lower, name)) ||
		strings.Contains(lower, "@coo") ||
		strings.Contains(lower, "?")
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max-3] + "..."
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
