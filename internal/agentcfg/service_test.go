package agentcfg

import (
	"bytes"
	"context"
	"errors"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/coo-agent/coo-backend/internal/common"
	"github.com/coo-agent/coo-backend/internal/secrets"
)

const testAdmin = "admin-principal"

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&AgentConfig{}, &Character{}, &Secret{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	vault, err := secrets.NewVault("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	svc := NewService(NewRepo(db), vault)
	if err := svc.Bootstrap(context.Background(), testAdmin, 50); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return svc
}

func TestBootstrap_SeedsSingletonsOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cfg, err := svc.Config(ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Provider != ProviderFallback {
		t.Fatalf("seeded provider = %q, want fallback", cfg.Provider)
	}
	if cfg.AdminPrincipal != testAdmin {
		t.Fatalf("seeded admin = %q", cfg.AdminPrincipal)
	}
	if cfg.MaxConversationLength != 50 {
		t.Fatalf("seeded window = %d, want 50", cfg.MaxConversationLength)
	}

	// A second bootstrap with different values keeps the existing rows.
	if err := svc.SetProvider(ctx, testAdmin, ProviderOpenAI); err != nil {
		t.Fatalf("set provider: %v", err)
	}
	if err := svc.Bootstrap(ctx, "other-admin", 10); err != nil {
		t.Fatalf("rebootstrap: %v", err)
	}
	cfg, err = svc.Config(ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.AdminPrincipal != testAdmin || cfg.MaxConversationLength != 50 {
		t.Fatalf("rebootstrap overwrote existing config: %+v", cfg)
	}
}

func TestSetProvider_ClosedSet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, p := range []string{ProviderOnChain, ProviderOpenAI, ProviderFallback} {
		if err := svc.SetProvider(ctx, testAdmin, p); err != nil {
			t.Fatalf("set provider %q: %v", p, err)
		}
		cfg, err := svc.Config(ctx)
		if err != nil {
			t.Fatalf("config: %v", err)
		}
		if cfg.Provider != p {
			t.Fatalf("provider = %q, want %q", cfg.Provider, p)
		}
	}

	if err := svc.SetProvider(ctx, testAdmin, "anthropic"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if err := svc.SetProvider(ctx, testAdmin, "  OpenAI "); err != nil {
		t.Fatalf("case-insensitive provider rejected: %v", err)
	}
}

func TestSetProvider_AdminOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.SetProvider(ctx, "someone-else", ProviderOpenAI); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	cfg, err := svc.Config(ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Provider != ProviderFallback {
		t.Fatalf("provider changed by non-admin to %q", cfg.Provider)
	}
}

func TestUpdateCharacter_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	want := &Character{
		ID:           1,
		Name:         "Coo",
		SystemPrompt: "You are Coo, an on-chain agent.",
		Bio:          StringList{"First line.", "Second line."},
		Style:        StringList{"concise"},
	}
	if err := svc.UpdateCharacter(ctx, testAdmin, want); err != nil {
		t.Fatalf("update character: %v", err)
	}

	got, err := svc.Character(ctx)
	if err != nil {
		t.Fatalf("character: %v", err)
	}
	if got.Name != want.Name || got.SystemPrompt != want.SystemPrompt {
		t.Fatalf("character = %+v", got)
	}
	if len(got.Bio) != 2 || got.Bio[0] != "First line." {
		t.Fatalf("bio = %v", got.Bio)
	}

	blank := &Character{ID: 1, Name: "  ", SystemPrompt: "x"}
	if err := svc.UpdateCharacter(ctx, testAdmin, blank); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for blank name", err)
	}
	if err := svc.UpdateCharacter(ctx, "someone-else", want); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSecrets_SealedRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	plaintext := []byte("sk-test-123")

	if err := svc.StoreSecret(ctx, testAdmin, SecretOpenAIKey, plaintext); err != nil {
		t.Fatalf("store secret: %v", err)
	}

	got, err := svc.OpenSecret(ctx, SecretOpenAIKey)
	if err != nil {
		t.Fatalf("open secret: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("opened secret = %q, want %q", got, plaintext)
	}

	has, err := svc.HasSecret(ctx, SecretOpenAIKey)
	if err != nil {
		t.Fatalf("has secret: %v", err)
	}
	if !has {
		t.Fatalf("stored secret not reported present")
	}

	if _, err := svc.OpenSecret(ctx, SecretDiscordBotToken); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for missing secret", err)
	}
	if err := svc.StoreSecret(ctx, "someone-else", SecretOpenAIKey, plaintext); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := svc.StoreSecret(ctx, testAdmin, SecretOpenAIKey, nil); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for empty secret", err)
	}
}
