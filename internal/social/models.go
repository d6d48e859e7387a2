package social

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
)

const (
	PlatformTwitter = "twitter"
	PlatformDiscord = "discord"
)

func ValidPlatform(p string) bool {
	return p == PlatformTwitter || p == PlatformDiscord
}

// Per-platform outbound content limits.
const (
	TwitterMaxChars = 280
	DiscordMaxChars = 2000
)

// Hourly outbound call budgets per platform, shared across replicas through
// the limiter's backing store.
const (
	TwitterHourlyLimit = 100
	DiscordHourlyLimit = 500
)

// StringMap stores cursor maps (discord channel id -> last seen message id)
// as a JSON column.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	b, err := json.Marshal(map[string]string(m))
	return string(b), err
}

func (m *StringMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), m)
	case []byte:
		return json.Unmarshal(v, m)
	}
	return errors.New("unsupported StringMap source")
}

// Settings is the singleton social integration row (id 1). Credentials live
// sealed in the secrets table, never here; this row only records what is
// configured and where the poller left off.
type Settings struct {
	ID                uint                `gorm:"primaryKey" json:"-"`
	EnabledPlatforms  agentcfg.StringList `gorm:"type:text" json:"enabled_platforms"`
	AutoReply         bool                `gorm:"not null" json:"auto_reply"`
	TwitterConfigured bool                `gorm:"not null" json:"twitter_configured"`
	DiscordConfigured bool                `gorm:"not null" json:"discord_configured"`

	TwitterUserID        string    `gorm:"type:varchar(32)" json:"-"`
	TwitterLastMentionID string    `gorm:"type:varchar(32)" json:"-"`
	TwitterLastPollAt    time.Time `json:"last_twitter_poll"`

	DiscordWebhookURL string              `gorm:"type:varchar(256)" json:"-"`
	DiscordChannelIDs agentcfg.StringList `gorm:"type:text" json:"discord_channel_ids"`
	DiscordCursors    StringMap           `gorm:"type:text" json:"-"`
	DiscordLastPollAt time.Time           `json:"last_discord_poll"`

	UpdatedAt time.Time `json:"-"`
}

func (Settings) TableName() string { return "social_settings" }

// InboxMessage is one inbound item claimed by the poller. The unique index
// over (platform, external_id) is the dedup set: whichever run inserts the
// row first owns the reply, every other run's insert is a no-op.
type InboxMessage struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Platform       string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_inbox_platform_ext" json:"platform"`
	ExternalID     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_inbox_platform_ext" json:"external_id"`
	AuthorID       string    `gorm:"type:varchar(64);not null" json:"author_id"`
	AuthorName     string    `gorm:"type:varchar(128)" json:"author_name"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	ConversationID string    `gorm:"type:varchar(64)" json:"conversation_id,omitempty"`
	Replied        bool      `gorm:"not null" json:"replied"`
	CreatedAt      time.Time `json:"created_at"`
}

func (InboxMessage) TableName() string { return "social_inbox" }

// Scheduled post lifecycle.
const (
	PostStatusPending    = "pending"
	PostStatusQueued     = "queued"
	PostStatusProcessing = "processing"
	PostStatusCompleted  = "completed"
	PostStatusFailed     = "failed"
)

// ScheduledPost is one outbound post awaiting its scheduled time. Due posts
// are handed to the delivery worker through the queue; the worker owns the
// pending -> processing -> completed/failed transitions.
type ScheduledPost struct {
	ID          string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Platform    string    `gorm:"type:varchar(16);not null" json:"platform"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	ScheduledAt time.Time `gorm:"index;not null" json:"scheduled_at"`
	Status      string    `gorm:"type:varchar(16);not null;index" json:"status"`
	RetryCount  int       `gorm:"not null" json:"retry_count"`

	ReplyToID string `gorm:"type:varchar(64)" json:"reply_to_id,omitempty"`
	ChannelID string `gorm:"type:varchar(64)" json:"channel_id,omitempty"`
	ResultID  string `gorm:"type:varchar(64)" json:"result_id,omitempty"`
	Error     string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (ScheduledPost) TableName() string { return "scheduled_posts" }

// AutoPostConfig is the singleton autonomous posting row (id 1).
type AutoPostConfig struct {
	ID              uint                `gorm:"primaryKey" json:"-"`
	Enabled         bool                `gorm:"not null" json:"enabled"`
	IntervalSeconds int64               `gorm:"not null" json:"interval_seconds"`
	Topics          agentcfg.StringList `gorm:"type:text" json:"topics"`
	LastPostAt      time.Time           `json:"last_post_time"`
	UpdatedAt       time.Time           `json:"-"`
}

func (AutoPostConfig) TableName() string { return "auto_post_config" }

// Status is the aggregate view returned by the status endpoint.
type Status struct {
	TwitterConfigured   bool      `json:"twitter_configured"`
	DiscordConfigured   bool      `json:"discord_configured"`
	EnabledPlatforms    []string  `json:"enabled_platforms"`
	AutoReply           bool      `json:"auto_reply"`
	PollingActive       bool      `json:"polling_active"`
	LastTwitterPoll     time.Time `json:"last_twitter_poll"`
	LastDiscordPoll     time.Time `json:"last_discord_poll"`
	PendingPosts        int64     `json:"pending_posts"`
	UnprocessedMessages int64     `json:"unprocessed_messages"`
}

// TwitterCredentials is the sealed credential payload for OAuth 1.0a.
type TwitterCredentials struct {
	APIKey            string `json:"api_key"`
	APISecret         string `json:"api_secret"`
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`
}
