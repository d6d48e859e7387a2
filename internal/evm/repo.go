package evm

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const maxTransactionRecords = 500

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) UpsertChain(ctx context.Context, cfg *ChainConfig) error {
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *Repo) GetChain(ctx context.Context, chainID uint64) (*ChainConfig, error) {
	var cfg ChainConfig
	if err := r.db.WithContext(ctx).First(&cfg, "chain_id = ?", chainID).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Repo) ListChains(ctx context.Context) ([]ChainConfig, error) {
	var chains []ChainConfig
	if err := r.db.WithContext(ctx).Order("chain_id ASC").Find(&chains).Error; err != nil {
		return nil, err
	}
	return chains, nil
}

func (r *Repo) InsertRecord(ctx context.Context, rec *TransactionRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return err
	}
	return r.trim(ctx)
}

func (r *Repo) trim(ctx context.Context) error {
	var cutoff TransactionRecord
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Offset(maxTransactionRecords - 1).
		First(&cutoff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return r.db.WithContext(ctx).
		Where("id < ?", cutoff.ID).
		Delete(&TransactionRecord{}).Error
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]TransactionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var recs []TransactionRecord
	if err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
