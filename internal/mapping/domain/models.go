// Package domain contains persistence models for per-tenant column mapping state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DetectedColumn records one distinct normalized header seen for a
// (tenant, provider) scope. Accumulates across uploads.
type DetectedColumn struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"not null;uniqueIndex:ux_detected_columns,priority:1"`
	Provider   string       `gorm:"type:text;not null;uniqueIndex:ux_detected_columns,priority:2"`
	ColumnName string       `gorm:"type:text;not null;uniqueIndex:ux_detected_columns,priority:3"`
	RawName    string       `gorm:"type:text;not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DetectedColumn) TableName() string { return "detected_columns" }

// MappingSuggestion is one scored (source column -> internal field) candidate,
// kept for audit regardless of acceptance.
type MappingSuggestion struct {
	ID           snowflake.ID                 `gorm:"primaryKey"`
	TenantID     snowflake.ID                 `gorm:"not null;index"`
	Provider     string                       `gorm:"type:text;not null"`
	SourceColumn string                       `gorm:"type:text;not null"`
	TargetField  string                       `gorm:"type:text;not null"`
	Confidence   float64                      `gorm:"not null"`
	Reasons      datatypes.JSONSlice[string]  `gorm:"type:jsonb"`
	AutoMapped   bool                         `gorm:"not null;default:false"`
	CreatedAt    time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MappingSuggestion) TableName() string { return "mapping_suggestions" }

// ColumnMapping is the confirmed source column for one internal field in a
// (tenant, provider) scope. Reused by every later upload in the same scope.
type ColumnMapping struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	TenantID     snowflake.ID `gorm:"not null;uniqueIndex:ux_column_mappings,priority:1"`
	Provider     string       `gorm:"type:text;not null;uniqueIndex:ux_column_mappings,priority:2"`
	TargetField  string       `gorm:"type:text;not null;uniqueIndex:ux_column_mappings,priority:3"`
	SourceColumn string       `gorm:"type:text;not null"`
	Confidence   float64      `gorm:"not null"`
	AutoMapped   bool         `gorm:"not null;default:false"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ColumnMapping) TableName() string { return "column_mappings" }
