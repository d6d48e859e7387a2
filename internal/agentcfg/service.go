package agentcfg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/coo-agent/coo-backend/internal/common"
	"github.com/coo-agent/coo-backend/internal/secrets"
)

const defaultMaxConversationLength = 50

// Service owns the config/character singletons and the admin gate. Every
// mutating operation in the wallet, EVM and social services calls
// RequireAdmin here before touching any state.
type Service struct {
	repo  *Repo
	vault *secrets.Vault
}

func NewService(repo *Repo, vault *secrets.Vault) *Service {
	return &Service{repo: repo, vault: vault}
}

// DefaultCharacter is the persona installed on first boot.
func DefaultCharacter() *Character {
	return &Character{
		Name: "Coo",
		SystemPrompt: `You are Coo, a helpful AI assistant built on the elizaOS framework, running fully on-chain on the Internet Computer.

You are:
- Friendly and approachable
- Knowledgeable about blockchain, Web3, and the Internet Computer
- Running as a decentralized, censorship-resistant AI agent
- Built on elizaOS - the leading open-source AI agent framework
- Capable of maintaining context across conversations

Your responses should be:
- Concise but helpful
- Engaging and conversational
- Accurate and informative`,
		Bio: StringList{
			"On-chain AI agent powered by elizaOS and Internet Computer",
			"Fully decentralized and censorship-resistant",
			"Built on elizaOS framework for autonomous AI agents",
		},
		Style: StringList{"Friendly", "Helpful", "Knowledgeable"},
	}
}

// Bootstrap creates the singleton rows when absent. Existing rows keep their
// values across restarts and upgrades.
func (s *Service) Bootstrap(ctx context.Context, adminPrincipal string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = defaultMaxConversationLength
	}

	if _, err := s.repo.GetConfig(ctx); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		cfg := &AgentConfig{
			Provider:              ProviderFallback,
			MaxConversationLength: maxLen,
			AdminPrincipal:        adminPrincipal,
		}
		if err := s.repo.SaveConfig(ctx, cfg); err != nil {
			return err
		}
	}

	if _, err := s.repo.GetCharacter(ctx); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := s.repo.SaveCharacter(ctx, DefaultCharacter()); err != nil {
			return err
		}
	}

	return nil
}

// IsAdmin is the single admin predicate: caller == stored admin principal.
func (s *Service) IsAdmin(ctx context.Context, principal string) bool {
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return false
	}
	return cfg.AdminPrincipal != "" && cfg.AdminPrincipal == principal
}

func (s *Service) RequireAdmin(ctx context.Context, principal string) error {
	if !s.IsAdmin(ctx, principal) {
		return fmt.Errorf("%w: admin only", common.ErrUnauthorized)
	}
	return nil
}

func (s *Service) Config(ctx context.Context) (*AgentConfig, error) {
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: config", common.ErrNotFound)
		}
		return nil, err
	}
	return cfg, nil
}

func (s *Service) SetProvider(ctx context.Context, principal, provider string) error {
	if err := s.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !ValidProvider(provider) {
		return fmt.Errorf("%w: unknown provider %q", common.ErrValidation, provider)
	}
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Provider = provider
	return s.repo.SaveConfig(ctx, cfg)
}

func (s *Service) Character(ctx context.Context) (*Character, error) {
	ch, err := s.repo.GetCharacter(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: character", common.ErrNotFound)
		}
		return nil, err
	}
	return ch, nil
}

func (s *Service) UpdateCharacter(ctx context.Context, principal string, ch *Character) error {
	if err := s.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	if strings.TrimSpace(ch.Name) == "" || strings.TrimSpace(ch.SystemPrompt) == "" {
		return fmt.Errorf("%w: character name and system_prompt are required", common.ErrValidation)
	}
	return s.repo.SaveCharacter(ctx, ch)
}

// StoreSecret seals and stores a named secret. Admin only.
func (s *Service) StoreSecret(ctx context.Context, principal, name string, plaintext []byte) error {
	if err := s.RequireAdmin(ctx, principal); err != nil {
		return err
	}
	if len(plaintext) == 0 {
		return fmt.Errorf("%w: empty secret", common.ErrValidation)
	}
	sealed, err := s.vault.Seal(plaintext)
	if err != nil {
		return err
	}
	return s.repo.SaveSecret(ctx, &Secret{Name: name, Sealed: sealed})
}

// OpenSecret decrypts a stored secret for transient use. Never exposed over
// the RPC surface.
func (s *Service) OpenSecret(ctx context.Context, name string) ([]byte, error) {
	sec, err := s.repo.GetSecret(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: secret %s", common.ErrNotFound, name)
		}
		return nil, err
	}
	return s.vault.Open(sec.Sealed)
}

func (s *Service) HasSecret(ctx context.Context, name string) (bool, error) {
	return s.repo.HasSecret(ctx, name)
}
