// Package domain contains the upload record and its lifecycle contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// legalTransitions is the only accepted status graph. A same-status
// transition succeeds without effect; anything else not listed here fails.
var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether current -> next is legal.
func CanTransition(current, next Status) bool {
	if current == next {
		return true
	}
	for _, allowed := range legalTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Upload is one ingestion attempt. Identity for dedup is the tuple
// (tenant, file name, file size, checksum); rows are never deleted here.
type Upload struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"not null;uniqueIndex:ux_uploads_fingerprint,priority:1"`

	FileName string `gorm:"type:text;not null;uniqueIndex:ux_uploads_fingerprint,priority:2"`
	FileSize int64  `gorm:"not null;uniqueIndex:ux_uploads_fingerprint,priority:3"`
	Checksum string `gorm:"type:text;not null;uniqueIndex:ux_uploads_fingerprint,priority:4"`

	Bucket    string `gorm:"type:text"`
	ObjectKey string `gorm:"type:text;index"`
	Region    string `gorm:"type:text"`
	ETag      string `gorm:"type:text"`

	BillingPeriod string `gorm:"type:text"`
	Provider      string `gorm:"type:text"`

	Status Status `gorm:"type:text;not null;default:PENDING"`
	Error  string `gorm:"type:text"`

	RowsTotal    int `gorm:"not null;default:0"`
	RowsSkipped  int `gorm:"not null;default:0"`
	FactsWritten int `gorm:"not null;default:0"`

	StartedAt  *time.Time `gorm:""`
	FinishedAt *time.Time `gorm:""`
	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Upload) TableName() string { return "uploads" }
