package agentcfg

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Provider tags for the chat dispatch. A closed set; anything else is a
// validation error.
const (
	ProviderOnChain  = "onchain"
	ProviderOpenAI   = "openai"
	ProviderFallback = "fallback"
)

func ValidProvider(p string) bool {
	switch p {
	case ProviderOnChain, ProviderOpenAI, ProviderFallback:
		return true
	}
	return false
}

// StringList stores an ordered list of text as a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	b, err := json.Marshal([]string(l))
	return string(b), err
}

func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	}
	return errors.New("unsupported StringList source")
}

// AgentConfig is the singleton runtime configuration (row id 1).
type AgentConfig struct {
	ID                    uint      `gorm:"primaryKey" json:"-"`
	Provider              string    `gorm:"type:varchar(16);not null" json:"llm_provider"`
	MaxConversationLength int       `gorm:"not null" json:"max_conversation_length"`
	AdminPrincipal        string    `gorm:"type:varchar(128);not null" json:"admin"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (AgentConfig) TableName() string { return "agent_config" }

// Character is the singleton persona read by the provider router (row id 1).
type Character struct {
	ID           uint       `gorm:"primaryKey" json:"-"`
	Name         string     `gorm:"type:varchar(64);not null" json:"name"`
	SystemPrompt string     `gorm:"type:text;not null" json:"system_prompt"`
	Bio          StringList `gorm:"type:text" json:"bio"`
	Style        StringList `gorm:"type:text" json:"style"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Character) TableName() string { return "characters" }

// Secret is a named sealed blob. The sealed bytes never leave the service.
type Secret struct {
	Name      string    `gorm:"primaryKey;type:varchar(64)"`
	Sealed    []byte    `gorm:"type:blob;not null"`
	UpdatedAt time.Time
}

func (Secret) TableName() string { return "secrets" }

// Names of the secrets the service knows about.
const (
	SecretOpenAIKey          = "openai_api_key"
	SecretTwitterCredentials = "twitter_credentials"
	SecretDiscordBotToken    = "discord_bot_token"
)
