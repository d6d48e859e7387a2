package social

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	singletonID      = 1
	maxInboxMessages = 500
	maxScheduledRows = 200
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// GetSettings returns the singleton row, creating it on first use.
func (r *Repo) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := r.db.WithContext(ctx).First(&s, singletonID).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	s = Settings{ID: singletonID}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) SaveSettings(ctx context.Context, s *Settings) error {
	s.ID = singletonID
	return r.db.WithContext(ctx).Save(s).Error
}

// SavePollState persists only the columns the poll tick owns. The tick holds
// its settings snapshot across network-length fetches; writing the full row
// back would revert any admin mutation committed mid-tick.
func (r *Repo) SavePollState(ctx context.Context, s *Settings) error {
	return r.db.WithContext(ctx).Model(&Settings{ID: singletonID}).Updates(map[string]any{
		"twitter_user_id":         s.TwitterUserID,
		"twitter_last_mention_id": s.TwitterLastMentionID,
		"twitter_last_poll_at":    s.TwitterLastPollAt,
		"discord_cursors":         s.DiscordCursors,
		"discord_last_poll_at":    s.DiscordLastPollAt,
	}).Error
}

// ClaimInbox inserts the message into the dedup set. It reports true only
// for the run that actually inserted the row; a concurrent or repeated run
// hitting the (platform, external_id) unique index gets false and must not
// reply. The claim happens before any reply is generated.
func (r *Repo) ClaimInbox(ctx context.Context, msg *InboxMessage) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, r.trimInbox(ctx)
}

func (r *Repo) trimInbox(ctx context.Context) error {
	var cutoff InboxMessage
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Offset(maxInboxMessages - 1).
		First(&cutoff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return r.db.WithContext(ctx).
		Where("id < ?", cutoff.ID).
		Delete(&InboxMessage{}).Error
}

func (r *Repo) MarkReplied(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&InboxMessage{}).
		Where("id = ?", id).
		Update("replied", true).Error
}

// ListInbox returns the newest messages first.
func (r *Repo) ListInbox(ctx context.Context, limit int) ([]InboxMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []InboxMessage
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Repo) CountUnreplied(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&InboxMessage{}).
		Where("replied = ?", false).
		Count(&n).Error
	return n, err
}

func (r *Repo) InsertPost(ctx context.Context, p *ScheduledPost) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return err
	}
	return r.trimPosts(ctx)
}

// trimPosts drops finished posts once the table passes its cap. Pending and
// in-flight posts are never trimmed.
func (r *Repo) trimPosts(ctx context.Context) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&ScheduledPost{}).Count(&n).Error; err != nil {
		return err
	}
	if n <= maxScheduledRows {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("status IN ?", []string{PostStatusCompleted, PostStatusFailed}).
		Delete(&ScheduledPost{}).Error
}

func (r *Repo) GetPost(ctx context.Context, id string) (*ScheduledPost, error) {
	var p ScheduledPost
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListPosts(ctx context.Context) ([]ScheduledPost, error) {
	var out []ScheduledPost
	err := r.db.WithContext(ctx).
		Order("scheduled_at ASC").
		Find(&out).Error
	return out, err
}

// DuePosts returns pending posts whose scheduled time has passed.
func (r *Repo) DuePosts(ctx context.Context, now time.Time) ([]ScheduledPost, error) {
	var out []ScheduledPost
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", PostStatusPending, now).
		Order("scheduled_at ASC").
		Find(&out).Error
	return out, err
}

// DeletePending removes a post only while it is still pending. Reports
// whether a row was removed.
func (r *Repo) DeletePending(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, PostStatusPending).
		Delete(&ScheduledPost{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repo) UpdatePostStatus(ctx context.Context, id, status string, fields map[string]any) error {
	updates := map[string]any{"status": status}
	for k, v := range fields {
		updates[k] = v
	}
	return r.db.WithContext(ctx).
		Model(&ScheduledPost{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repo) IncrementRetry(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&ScheduledPost{}).
		Where("id = ?", id).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (r *Repo) CountPendingPosts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&ScheduledPost{}).
		Where("status IN ?", []string{PostStatusPending, PostStatusQueued, PostStatusProcessing}).
		Count(&n).Error
	return n, err
}

// GetAutoPostConfig returns the singleton row, creating a disabled one on
// first use.
func (r *Repo) GetAutoPostConfig(ctx context.Context) (*AutoPostConfig, error) {
	var c AutoPostConfig
	err := r.db.WithContext(ctx).First(&c, singletonID).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	c = AutoPostConfig{ID: singletonID}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) SaveAutoPostConfig(ctx context.Context, c *AutoPostConfig) error {
	c.ID = singletonID
	return r.db.WithContext(ctx).Save(c).Error
}
