package social

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/coo-agent/coo-backend/internal/agentcfg"
	"github.com/coo-agent/coo-backend/internal/secrets"
)

const testAdmin = "admin-principal"

type fakeTwitter struct {
	mentions   []InboxMessage
	posts      []string
	onMentions func()
}

func (f *fakeTwitter) UserID(ctx context.Context) (string, error) {
	_ = ctx
	return "4242", nil
}

func (f *fakeTwitter) Mentions(ctx context.Context, userID, sinceID string) ([]InboxMessage, error) {
	_ = ctx
	_ = userID
	_ = sinceID
	if f.onMentions != nil {
		f.onMentions()
	}
	return append([]InboxMessage(nil), f.mentions...), nil
}

func (f *fakeTwitter) Post(ctx context.Context, text, replyToID string) (string, error) {
	_ = ctx
	_ = replyToID
	f.posts = append(f.posts, text)
	return fmt.Sprintf("post-%d", len(f.posts)), nil
}

type fakeDiscord struct {
	messages map[string][]InboxMessage
	posts    []string
}

func (f *fakeDiscord) ChannelMessages(ctx context.Context, channelID, afterID string) ([]InboxMessage, error) {
	_ = ctx
	_ = afterID
	return append([]InboxMessage(nil), f.messages[channelID]...), nil
}

func (f *fakeDiscord) PostMessage(ctx context.Context, channelID, content string) (string, error) {
	_ = ctx
	_ = channelID
	f.posts = append(f.posts, content)
	return fmt.Sprintf("msg-%d", len(f.posts)), nil
}

func (f *fakeDiscord) PostWebhook(ctx context.Context, webhookURL, content string) error {
	_ = ctx
	_ = webhookURL
	f.posts = append(f.posts, content)
	return nil
}

// allowAll never rate limits.
type allowAll struct{}

func (allowAll) Allow(ctx context.Context, key string, limit int64, window time.Duration) error {
	_ = ctx
	_ = key
	_ = limit
	_ = window
	return nil
}

type echoReplier struct {
	calls int
}

func (r *echoReplier) Send(ctx context.Context, principal, text string) (string, error) {
	_ = ctx
	_ = principal
	r.calls++
	return "re: " + text, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Settings{}, &InboxMessage{}, &ScheduledPost{}, &AutoPostConfig{},
		&agentcfg.AgentConfig{}, &agentcfg.Character{}, &agentcfg.Secret{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestGate(t *testing.T, db *gorm.DB) *agentcfg.Service {
	t.Helper()
	vault, err := secrets.NewVault("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	gate := agentcfg.NewService(agentcfg.NewRepo(db), vault)
	if err := gate.Bootstrap(context.Background(), testAdmin, 50); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return gate
}

func newTestPoller(t *testing.T, tw *fakeTwitter, dc *fakeDiscord) (*Poller, *Repo, *echoReplier) {
	t.Helper()
	db := openTestDB(t)
	repo := NewRepo(db)
	gate := newTestGate(t, db)
	replier := &echoReplier{}
	p := NewPoller(repo, gate, replier, allowAll{}, tw, dc, nil)
	return p, repo, replier
}

func enableTwitter(t *testing.T, repo *Repo, autoReply bool) {
	t.Helper()
	settings, err := repo.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	settings.TwitterConfigured = true
	settings.EnabledPlatforms = agentcfg.StringList{PlatformTwitter}
	settings.AutoReply = autoReply
	if err := repo.SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}
}

func TestTick_SameMentionTwice_AtMostOneReply(t *testing.T) {
	tw := &fakeTwitter{mentions: []InboxMessage{{
		Platform:   PlatformTwitter,
		ExternalID: "1001",
		AuthorID:   "u1",
		AuthorName: "alice",
		Content:    "hey Coo, what is the Internet Computer?",
	}}}
	p, repo, _ := newTestPoller(t, tw, &fakeDiscord{})
	enableTwitter(t, repo, true)

	// Two ticks returning the identical mention simulate the duplicated
	// poll the substrate can produce.
	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	// Drop the cursor so the second tick re-fetches the same item.
	settings, _ := repo.GetSettings(context.Background())
	settings.TwitterLastMentionID = ""
	if err := repo.SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("reset cursor: %v", err)
	}
	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	if len(tw.posts) != 1 {
		t.Fatalf("expected exactly one reply post, got %d: %v", len(tw.posts), tw.posts)
	}
}

func TestTick_ClaimHappensEvenWithoutAutoReply(t *testing.T) {
	tw := &fakeTwitter{mentions: []InboxMessage{{
		Platform:   PlatformTwitter,
		ExternalID: "2001",
		AuthorID:   "u2",
		AuthorName: "bob",
		Content:    "Coo?",
	}}}
	p, repo, replier := newTestPoller(t, tw, &fakeDiscord{})
	enableTwitter(t, repo, false)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if replier.calls != 0 || len(tw.posts) != 0 {
		t.Fatalf("auto-reply off must not reply: calls=%d posts=%d", replier.calls, len(tw.posts))
	}
	inbox, err := repo.ListInbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].ExternalID != "2001" {
		t.Fatalf("mention should be claimed into the inbox: %+v", inbox)
	}
}

func TestTick_RepliesCappedPerTick(t *testing.T) {
	var mentions []InboxMessage
	for i := 0; i < 5; i++ {
		mentions = append(mentions, InboxMessage{
			Platform:   PlatformTwitter,
			ExternalID: fmt.Sprintf("3%03d", i),
			AuthorID:   fmt.Sprintf("u%d", i),
			AuthorName: fmt.Sprintf("user%d", i),
			Content:    "what can you do?",
		})
	}
	tw := &fakeTwitter{mentions: mentions}
	p, repo, _ := newTestPoller(t, tw, &fakeDiscord{})
	enableTwitter(t, repo, true)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(tw.posts) != maxRepliesPerTick {
		t.Fatalf("expected %d replies, got %d", maxRepliesPerTick, len(tw.posts))
	}
}

func TestTick_IgnoresItemsNotAddressedAtAgent(t *testing.T) {
	tw := &fakeTwitter{mentions: []InboxMessage{{
		Platform:   PlatformTwitter,
		ExternalID: "4001",
		AuthorID:   "u9",
		AuthorName: "carol",
		Content:    "just talking to myself here",
	}}}
	p, repo, _ := newTestPoller(t, tw, &fakeDiscord{})
	enableTwitter(t, repo, true)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(tw.posts) != 0 {
		t.Fatalf("item without a question or name mention must be skipped, got %v", tw.posts)
	}
}

func TestTick_AdvancesTwitterCursor(t *testing.T) {
	tw := &fakeTwitter{mentions: []InboxMessage{
		{Platform: PlatformTwitter, ExternalID: "5009", AuthorID: "a", AuthorName: "a", Content: "?"},
		{Platform: PlatformTwitter, ExternalID: "5001", AuthorID: "b", AuthorName: "b", Content: "?"},
	}}
	p, repo, _ := newTestPoller(t, tw, &fakeDiscord{})
	enableTwitter(t, repo, false)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	settings, err := repo.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	// Mentions arrive newest first; the cursor is the first item.
	if settings.TwitterLastMentionID != "5009" {
		t.Fatalf("cursor not advanced: %q", settings.TwitterLastMentionID)
	}
	if settings.TwitterLastPollAt.IsZero() {
		t.Fatalf("last poll time not recorded")
	}
}

func TestTick_KeepsMidTickSettingsWrites(t *testing.T) {
	tw := &fakeTwitter{mentions: []InboxMessage{
		{Platform: PlatformTwitter, ExternalID: "7001", AuthorID: "a", AuthorName: "a", Content: "?"},
	}}
	p, repo, _ := newTestPoller(t, tw, &fakeDiscord{})
	enableTwitter(t, repo, true)

	// An admin turns auto-reply off while the tick is out fetching mentions.
	tw.onMentions = func() {
		settings, err := repo.GetSettings(context.Background())
		if err != nil {
			t.Fatalf("settings: %v", err)
		}
		settings.AutoReply = false
		if err := repo.SaveSettings(context.Background(), settings); err != nil {
			t.Fatalf("save settings: %v", err)
		}
	}

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	settings, err := repo.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.AutoReply {
		t.Fatalf("tick overwrote the admin's auto-reply change")
	}
	// The tick still owns its own columns.
	if settings.TwitterLastMentionID != "7001" {
		t.Fatalf("cursor not advanced: %q", settings.TwitterLastMentionID)
	}
	if settings.TwitterUserID == "" {
		t.Fatalf("resolved user id not persisted")
	}
}

func TestPoller_StartRequiresAdmin(t *testing.T) {
	p, _, _ := newTestPoller(t, &fakeTwitter{}, &fakeDiscord{})

	if err := p.Start(context.Background(), "not-admin", time.Minute); err == nil {
		t.Fatalf("non-admin start must fail")
	}
	if p.Running() {
		t.Fatalf("poller must not be running after rejected start")
	}
}

func TestPoller_StartStop(t *testing.T) {
	p, _, _ := newTestPoller(t, &fakeTwitter{}, &fakeDiscord{})

	if err := p.Start(context.Background(), testAdmin, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.Running() {
		t.Fatalf("expected running after start")
	}
	if err := p.Stop(context.Background(), testAdmin); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.Running() {
		t.Fatalf("expected stopped after stop")
	}
}

func TestClaimInbox_SecondInsertLoses(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	first := InboxMessage{Platform: PlatformTwitter, ExternalID: "x1", AuthorID: "a", Content: "hi"}
	won, err := repo.ClaimInbox(context.Background(), &first)
	if err != nil || !won {
		t.Fatalf("first claim should win: won=%v err=%v", won, err)
	}

	dup := InboxMessage{Platform: PlatformTwitter, ExternalID: "x1", AuthorID: "a", Content: "hi"}
	won, err = repo.ClaimInbox(context.Background(), &dup)
	if err != nil {
		t.Fatalf("duplicate claim errored: %v", err)
	}
	if won {
		t.Fatalf("duplicate claim must lose")
	}

	// Same external id on another platform is a different item.
	other := InboxMessage{Platform: PlatformDiscord, ExternalID: "x1", AuthorID: "a", Content: "hi"}
	won, err = repo.ClaimInbox(context.Background(), &other)
	if err != nil || !won {
		t.Fatalf("cross-platform claim should win: won=%v err=%v", won, err)
	}
}
