package wallet

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Transaction history is capped to keep the table bounded; oldest evicted.
const maxTransactionRecords = 1000

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
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

// ListRecent returns records newest first.
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

func (r *Repo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&TransactionRecord{}).Count(&n).Error
	return n, err
}
