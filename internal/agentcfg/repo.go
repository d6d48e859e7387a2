package agentcfg

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const singletonID = 1

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetConfig(ctx context.Context) (*AgentConfig, error) {
	var cfg AgentConfig
	if err := r.db.WithContext(ctx).First(&cfg, singletonID).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig replaces the singleton row atomically.
func (r *Repo) SaveConfig(ctx context.Context, cfg *AgentConfig) error {
	cfg.ID = singletonID
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *Repo) GetCharacter(ctx context.Context) (*Character, error) {
	var ch Character
	if err := r.db.WithContext(ctx).First(&ch, singletonID).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *Repo) SaveCharacter(ctx context.Context, ch *Character) error {
	ch.ID = singletonID
	return r.db.WithContext(ctx).Save(ch).Error
}

func (r *Repo) SaveSecret(ctx context.Context, s *Secret) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *Repo) GetSecret(ctx context.Context, name string) (*Secret, error) {
	var s Secret
	if err := r.db.WithContext(ctx).First(&s, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) HasSecret(ctx context.Context, name string) (bool, error) {
	_, err := r.GetSecret(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}
