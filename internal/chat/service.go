package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/ai"
	"github.com/coo-agent/coo-backend/internal/common"
)

// Service routes one user turn through the configured provider and keeps the
// bounded per-principal history. Conversation mutation takes the principal's
// lock so concurrent chat calls by the same principal cannot interleave their
// append-dispatch-append sequences.
type Service struct {
	repo     *Repo
	cfg      *agentcfg.Service
	registry *ai.Registry

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo *Repo, cfg *agentcfg.Service, registry *ai.Registry) *Service {
	return &Service{
		repo:     repo,
		cfg:      cfg,
		registry: registry,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(principal string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[principal]
	if !ok {
		l = &sync.Mutex{}
		s.locks[principal] = l
	}
	return l
}

// Send appends the user turn, dispatches to the configured provider, and on
// success appends and returns the assistant turn. On provider failure the
// user turn stays in place; the UI layer decides how to present that.
func (s *Service) Send(ctx context.Context, principal, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty message", common.ErrValidation)
	}

	l := s.lockFor(principal)
	l.Lock()
	defer l.Unlock()

	cfg, err := s.cfg.Config(ctx)
	if err != nil {
		return "", err
	}
	character, err := s.cfg.Character(ctx)
	if err != nil {
		return "", err
	}

	if err := s.repo.InsertMessage(ctx, &Message{
		Principal: principal,
		Role:      "user",
		Content:   text,
	}); err != nil {
		return "", err
	}
	if err := s.repo.TrimToNewest(ctx, principal, cfg.MaxConversationLength); err != nil {
		return "", err
	}

	history, err := s.repo.ListMessages(ctx, principal)
	if err != nil {
		return "", err
	}

	prompt := make([]ai.Message, 0, len(history)+1)
	prompt = append(prompt, ai.Message{Role: "system", Content: character.SystemPrompt})
	for _, m := range history {
		prompt = append(prompt, ai.Message{Role: m.Role, Content: m.Content})
	}

	provider, err := s.registry.Get(ctx, cfg.Provider)
	if err != nil {
		return "", err
	}

	reply, err := provider.Chat(ctx, prompt)
	if err != nil {
		// No assistant turn; the optimistic user turn remains.
		return "", err
	}

	if err := s.repo.InsertMessage(ctx, &Message{
		Principal: principal,
		Role:      "assistant",
		Content:   reply,
	}); err != nil {
		return "", err
	}
	if err := s.repo.TrimToNewest(ctx, principal, cfg.MaxConversationLength); err != nil {
		return "", err
	}

	return reply, nil
}

// History returns the caller's own conversation, oldest first.
func (s *Service) History(ctx context.Context, principal string) ([]Message, error) {
	return s.repo.ListMessages(ctx, principal)
}

// HistoryCount returns the number of stored turns in the caller's own
// conversation.
func (s *Service) HistoryCount(ctx context.Context, principal string) (int64, error) {
	return s.repo.Count(ctx, principal)
}

// Clear wipes the caller's own conversation.
func (s *Service) Clear(ctx context.Context, principal string) error {
	l := s.lockFor(principal)
	l.Lock()
	defer l.Unlock()
	return s.repo.Clear(ctx, principal)
}
