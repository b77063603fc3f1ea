// Package domain contains per-tenant storage integration records.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type AuthMode string

const (
	// AuthModeRole delegates access through an assumed IAM role.
	AuthModeRole AuthMode = "role"
	// AuthModeKeys uses tenant-supplied access keys, encrypted at rest.
	AuthModeKeys AuthMode = "keys"
)

// StorageIntegration points at one bucket/prefix a tenant wants polled for
// new billing export objects.
type StorageIntegration struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"not null;uniqueIndex:ux_storage_integrations,priority:1"`

	Bucket string `gorm:"type:text;not null;uniqueIndex:ux_storage_integrations,priority:2"`
	Prefix string `gorm:"type:text;uniqueIndex:ux_storage_integrations,priority:3"`
	Region string `gorm:"type:text;not null"`

	AuthMode            AuthMode `gorm:"type:text;not null"`
	RoleARN             string   `gorm:"type:text"`
	AccessKeyID         string   `gorm:"type:text"`
	SecretKeyCiphertext []byte   `gorm:"type:bytea"`

	Enabled      bool       `gorm:"not null;default:true"`
	LastPolledAt *time.Time `gorm:""`
	LastError    string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (StorageIntegration) TableName() string { return "storage_integrations" }

type CreateIntegrationRequest struct {
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	Region          string `json:"region"`
	AuthMode        string `json:"auth_mode"`
	RoleARN         string `json:"role_arn"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// Response is the integration shape safe to return over HTTP: credential
// material never leaves the service.
type Response struct {
	ID           string     `json:"id"`
	Bucket       string     `json:"bucket"`
	Prefix       string     `json:"prefix"`
	Region       string     `json:"region"`
	AuthMode     AuthMode   `json:"auth_mode"`
	Enabled      bool       `json:"enabled"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateIntegrationRequest) (*Response, error)
	List(ctx context.Context) ([]Response, error)
	Get(ctx context.Context, id string) (*StorageIntegration, error)
	// FindByBucket resolves the tenant's integration covering one bucket.
	FindByBucket(ctx context.Context, bucket string) (*StorageIntegration, error)
	// ListEnabled returns every enabled integration across tenants, for
	// the poll worker.
	ListEnabled(ctx context.Context) ([]StorageIntegration, error)
	RecordPollSuccess(ctx context.Context, id snowflake.ID, at time.Time) error
	RecordPollError(ctx context.Context, id snowflake.ID, cause error) error
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidRequest  = errors.New("invalid_integration_request")
	ErrInvalidAuthMode = errors.New("invalid_auth_mode")
	ErrNotFound        = errors.New("integration_not_found")
	ErrAlreadyExists   = errors.New("integration_already_exists")
)

// ToResponse strips credential material.
func (i StorageIntegration) ToResponse() Response {
	return Response{
		ID:           i.ID.String(),
		Bucket:       i.Bucket,
		Prefix:       i.Prefix,
		Region:       i.Region,
		AuthMode:     i.AuthMode,
		Enabled:      i.Enabled,
		LastPolledAt: i.LastPolledAt,
		LastError:    i.LastError,
	}
}
