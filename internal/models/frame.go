package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
LEARNING: FRAME JOURNAL

Every SEND the broker receives for an /app destination is a request from an
annotation client to the annotation server. Journaling them gives:
- a replayable record of what each client asked for
- a way to inspect traffic without attaching a debugger to the socket

Flow:
  Client publishes SEND → broker reads frame → journal row → application handler
*/

// FrameRecord stores the body of one SEND frame received by the broker
type FrameRecord struct {
	ID          string    `gorm:"type:varchar(27);primaryKey" json:"id"`
	SessionID   string    `gorm:"type:varchar(27);not null;index" json:"session_id"`
	Destination string    `gorm:"type:varchar(255);not null;index:idx_dest_time" json:"destination"`
	Body        []byte    `gorm:"type:bytea" json:"-"`
	Size        int       `gorm:"not null" json:"size"`
	CreatedAt   time.Time `gorm:"index:idx_dest_time" json:"created_at"`
}

// BeforeCreate generates KSUID
func (f *FrameRecord) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = ksuid.New().String()
	}
	f.Size = len(f.Body)
	return nil
}

func (FrameRecord) TableName() string {
	return "frame_records"
}
