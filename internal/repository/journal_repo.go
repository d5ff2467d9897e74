package repository

import (
	"context"
	"errors"
	"fmt"

	"annosync/internal/models"

	"gorm.io/gorm"
)

/*
LEARNING: FRAME JOURNAL PERSISTENCE

Query patterns:
- StoreFrame: one row per SEND received by the broker
- ListFrames: most recent traffic for a destination (or all destinations)
- LatestFrame: last request seen on a destination
- DeleteOldFrames: keep the table bounded
*/

// JournalRepositoryImpl handles frame journal storage
type JournalRepositoryImpl struct {
	db *gorm.DB
}

func NewJournalRepository(db *gorm.DB) *JournalRepositoryImpl {
	return &JournalRepositoryImpl{db: db}
}

// StoreFrame stores the body of a SEND frame
func (r *JournalRepositoryImpl) StoreFrame(ctx context.Context, sessionID, destination string, body []byte) error {
	record := &models.FrameRecord{
		SessionID:   sessionID,
		Destination: destination,
		Body:        body,
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to store frame: %w", err)
	}
	return nil
}

// ListFrames returns the newest frames first. An empty destination lists every destination.
func (r *JournalRepositoryImpl) ListFrames(ctx context.Context, destination string, limit int) ([]*models.FrameRecord, error) {
	var records []*models.FrameRecord

	query := r.db.WithContext(ctx).Order("created_at DESC")
	if destination != "" {
		query = query.Where("destination = ?", destination)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	return records, nil
}

// LatestFrame gets the most recent frame for a destination, nil when there is none
func (r *JournalRepositoryImpl) LatestFrame(ctx context.Context, destination string) (*models.FrameRecord, error) {
	var record models.FrameRecord

	err := r.db.WithContext(ctx).
		Where("destination = ?", destination).
		Order("created_at DESC").
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest frame: %w", err)
	}
	return &record, nil
}

// DeleteOldFrames keeps the newest keepCount frames and removes the rest
func (r *JournalRepositoryImpl) DeleteOldFrames(ctx context.Context, keepCount int) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.FrameRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	if count <= int64(keepCount) {
		return 0, nil
	}

	var cutoff models.FrameRecord
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(keepCount).
		First(&cutoff).Error; err != nil {
		return 0, fmt.Errorf("failed to find cutoff frame: %w", err)
	}

	result := r.db.WithContext(ctx).
		Where("created_at <= ?", cutoff.CreatedAt).
		Delete(&models.FrameRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old frames: %w", result.Error)
	}
	return result.RowsAffected, nil
}
