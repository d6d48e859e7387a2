package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns the conversation in ASC id order (oldest -> newest).
func (r *Repo) ListMessages(ctx context.Context, principal string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("principal = ?", principal).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) Count(ctx context.Context, principal string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("principal = ?", principal).
		Count(&n).Error
	return n, err
}

// TrimToNewest deletes everything but the `keep` most recent turns. Eviction
// is strictly oldest-first.
func (r *Repo) TrimToNewest(ctx context.Context, principal string, keep int) error {
	if keep <= 0 {
		return r.Clear(ctx, principal)
	}

	var cutoff Message
	err := r.db.WithContext(ctx).
		Where("principal = ?", principal).
		Order("id DESC").
		Offset(keep - 1).
		First(&cutoff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // fewer than keep messages
		}
		return err
	}

	return r.db.WithContext(ctx).
		Where("principal = ? AND id < ?", principal, cutoff.ID).
		Delete(&Message{}).Error
}

func (r *Repo) Clear(ctx context.Context, principal string) error {
	return r.db.WithContext(ctx).
		Where("principal = ?", principal).
		Delete(&Message{}).Error
}
