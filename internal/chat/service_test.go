package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/ai"
	"github.com/coo-agent/coo-backend/internal/common"
	"github.com/coo-agent/coo-backend/internal/secrets"
)

const testAdmin = "admin-principal"

// recordingProvider captures every prompt it receives and answers with a
// canned reply, or fails when err is set.
type recordingProvider struct {
	reply   string
	err     error
	prompts [][]ai.Message
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	p.prompts = append(p.prompts, messages)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Message{}, &agentcfg.AgentConfig{}, &agentcfg.Character{}, &agentcfg.Secret{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, maxLen int, provider ai.Provider) (*Service, *agentcfg.Service) {
	t.Helper()
	db := openTestDB(t)
	vault, err := secrets.NewVault("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	gate := agentcfg.NewService(agentcfg.NewRepo(db), vault)
	if err := gate.Bootstrap(context.Background(), testAdmin, maxLen); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	registry := ai.NewRegistry()
	registry.Register(agentcfg.ProviderFallback, func(ctx context.Context) (ai.Provider, error) {
		return provider, nil
	})
	return NewService(NewRepo(db), gate, registry), gate
}

func TestSend_AppendsUserAndAssistantTurns(t *testing.T) {
	provider := &recordingProvider{reply: "pong"}
	svc, _ := newTestService(t, 50, provider)
	ctx := context.Background()

	reply, err := svc.Send(ctx, "alice", "ping")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply != "pong" {
		t.Fatalf("reply = %q, want pong", reply)
	}

	history, err := svc.History(ctx, "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "ping" {
		t.Fatalf("first turn = %s %q", history[0].Role, history[0].Content)
	}
	if history[1].Role != "assistant" || history[1].Content != "pong" {
		t.Fatalf("second turn = %s %q", history[1].Role, history[1].Content)
	}

	count, err := svc.HistoryCount(ctx, "alice")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestSend_PromptStartsWithSystemCharacter(t *testing.T) {
	provider := &recordingProvider{reply: "ok"}
	svc, gate := newTestService(t, 50, provider)
	ctx := context.Background()

	character, err := gate.Character(ctx)
	if err != nil {
		t.Fatalf("character: %v", err)
	}

	if _, err := svc.Send(ctx, "alice", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(provider.prompts) != 1 {
		t.Fatalf("provider called %d times, want 1", len(provider.prompts))
	}
	prompt := provider.prompts[0]
	if prompt[0].Role != "system" || prompt[0].Content != character.SystemPrompt {
		t.Fatalf("prompt[0] = %s %q, want system prompt", prompt[0].Role, prompt[0].Content)
	}
	if prompt[len(prompt)-1].Role != "user" || prompt[len(prompt)-1].Content != "hello" {
		t.Fatalf("prompt tail = %+v, want the user turn", prompt[len(prompt)-1])
	}
}

func TestSend_WindowEvictsOldestTurns(t *testing.T) {
	provider := &recordingProvider{reply: "r"}
	svc, _ := newTestService(t, 6, provider)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := svc.Send(ctx, "alice", fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		history, err := svc.History(ctx, "alice")
		if err != nil {
			t.Fatalf("history %d: %v", i, err)
		}
		if len(history) > 6 {
			t.Fatalf("history length %d after send %d, want <= 6", len(history), i)
		}
	}

	history, err := svc.History(ctx, "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 6 {
		t.Fatalf("history length = %d, want 6", len(history))
	}
	// Survivors are the newest turns in order; the final user turn is msg-9.
	var lastUser string
	for _, m := range history {
		if m.Role == "user" {
			lastUser = m.Content
		}
	}
	if lastUser != "msg-9" {
		t.Fatalf("newest user turn = %q, want msg-9", lastUser)
	}
	for _, m := range history {
		if m.Role == "user" && strings.HasPrefix(m.Content, "msg-") && m.Content < "msg-7" {
			t.Fatalf("old turn %q survived eviction", m.Content)
		}
	}
}

func TestSend_EmptyMessageRejected(t *testing.T) {
	provider := &recordingProvider{reply: "r"}
	svc, _ := newTestService(t, 50, provider)

	if _, err := svc.Send(context.Background(), "alice", "   "); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(provider.prompts) != 0 {
		t.Fatalf("provider called for empty message")
	}
}

func TestSend_ProviderFailureKeepsUserTurn(t *testing.T) {
	provider := &recordingProvider{err: fmt.Errorf("%w: backend down", common.ErrProviderUnavailable)}
	svc, _ := newTestService(t, 50, provider)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "alice", "ping"); !errors.Is(err, common.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}

	history, err := svc.History(ctx, "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Role != "user" {
		t.Fatalf("surviving turn role = %s, want user", history[0].Role)
	}
}

func TestSend_ConversationsIsolatedByPrincipal(t *testing.T) {
	provider := &recordingProvider{reply: "r"}
	svc, _ := newTestService(t, 50, provider)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "alice", "from alice"); err != nil {
		t.Fatalf("send alice: %v", err)
	}
	if _, err := svc.Send(ctx, "bob", "from bob"); err != nil {
		t.Fatalf("send bob: %v", err)
	}

	history, err := svc.History(ctx, "bob")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, m := range history {
		if strings.Contains(m.Content, "alice") {
			t.Fatalf("bob's history contains alice's turn %q", m.Content)
		}
	}
}

func TestClear_EmptiesOwnHistoryOnly(t *testing.T) {
	provider := &recordingProvider{reply: "r"}
	svc, _ := newTestService(t, 50, provider)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "alice", "hi"); err != nil {
		t.Fatalf("send alice: %v", err)
	}
	if _, err := svc.Send(ctx, "bob", "hi"); err != nil {
		t.Fatalf("send bob: %v", err)
	}

	if err := svc.Clear(ctx, "alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	aliceHist, err := svc.History(ctx, "alice")
	if err != nil {
		t.Fatalf("history alice: %v", err)
	}
	if len(aliceHist) != 0 {
		t.Fatalf("alice history length = %d after clear, want 0", len(aliceHist))
	}
	count, err := svc.HistoryCount(ctx, "alice")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d after clear, want 0", count)
	}
	bobHist, err := svc.History(ctx, "bob")
	if err != nil {
		t.Fatalf("history bob: %v", err)
	}
	if len(bobHist) != 2 {
		t.Fatalf("bob history length = %d, want 2", len(bobHist))
	}
}

func TestSend_FallbackProviderAnswersWithoutNetwork(t *testing.T) {
	fallback := ai.NewFallbackProvider("Coo", []string{"An on-chain agent."})
	svc, _ := newTestService(t, 50, fallback)

	reply, err := svc.Send(context.Background(), "alice", "hello there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(reply, "Coo") {
		t.Fatalf("fallback reply %q does not introduce the character", reply)
	}
}
