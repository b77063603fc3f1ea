// Package domain contains the normalized billing fact table.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingFact is one normalized billing line item. Account, service and
// region are mandatory references; the remaining dimensions are nullable.
type BillingFact struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"not null;index"`
	UploadID snowflake.ID `gorm:"not null;index"`

	AccountID            snowflake.ID  `gorm:"not null"`
	ServiceID            snowflake.ID  `gorm:"not null"`
	RegionID             snowflake.ID  `gorm:"not null"`
	ResourceID           *snowflake.ID `gorm:""`
	SKUID                *snowflake.ID `gorm:"column:sku_id"`
	CommitmentDiscountID *snowflake.ID `gorm:""`

	BilledCost       float64  `gorm:"not null"`
	ConsumedQuantity *float64 `gorm:""`

	ChargePeriodStart *time.Time `gorm:""`
	ChargePeriodEnd   *time.Time `gorm:""`

	ChargeDescription string            `gorm:"type:text"`
	ChargeCategory    string            `gorm:"type:text"`
	Currency          string            `gorm:"type:text"`
	Tags              datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (BillingFact) TableName() string { return "billing_facts" }
