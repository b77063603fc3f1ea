// Package domain contains the dimension tables referenced by billing facts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is one billing account (AWS account, Azure subscription, GCP
// billing account) keyed by provider + account identifier.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_accounts,priority:1"`
	Provider  string       `gorm:"type:text;not null;uniqueIndex:ux_accounts,priority:2"`
	AccountID string       `gorm:"type:text;not null;uniqueIndex:ux_accounts,priority:3"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Account) TableName() string { return "dim_accounts" }

// CloudService is one billable service (EC2, BigQuery, ...).
type CloudService struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TenantID    snowflake.ID `gorm:"not null;uniqueIndex:ux_services,priority:1"`
	ServiceName string       `gorm:"type:text;not null;uniqueIndex:ux_services,priority:2"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CloudService) TableName() string { return "dim_services" }

type Region struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"not null;uniqueIndex:ux_regions,priority:1"`
	RegionCode string       `gorm:"type:text;not null;uniqueIndex:ux_regions,priority:2"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Region) TableName() string { return "dim_regions" }

type Resource struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"not null;uniqueIndex:ux_resources,priority:1"`
	ResourceID string       `gorm:"type:text;not null;uniqueIndex:ux_resources,priority:2"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Resource) TableName() string { return "dim_resources" }

type SKU struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_skus,priority:1"`
	SKUID     string       `gorm:"column:sku_id;type:text;not null;uniqueIndex:ux_skus,priority:2"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SKU) TableName() string { return "dim_skus" }

// CommitmentDiscount is a reservation or savings-plan style commitment.
type CommitmentDiscount struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	TenantID     snowflake.ID `gorm:"not null;uniqueIndex:ux_commitment_discounts,priority:1"`
	CommitmentID string       `gorm:"type:text;not null;uniqueIndex:ux_commitment_discounts,priority:2"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommitmentDiscount) TableName() string { return "dim_commitment_discounts" }
