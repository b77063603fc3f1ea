package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateUploadRequest struct {
	FileName      string `json:"file_name"`
	FileSize      int64  `json:"file_size"`
	Checksum      string `json:"checksum"`
	Bucket        string `json:"bucket"`
	ObjectKey     string `json:"object_key"`
	Region        string `json:"region"`
	ETag          string `json:"etag"`
	BillingPeriod string `json:"billing_period"`
}

// CreateUploadResult reports either the freshly created upload or, for a
// redundant delivery, the existing one.
type CreateUploadResult struct {
	Upload    *Upload
	Duplicate bool
}

type ListUploadsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
}

type RunCounts struct {
	RowsTotal    int
	RowsSkipped  int
	FactsWritten int
}

type Service interface {
	// Create registers an ingestion attempt in PENDING, short-circuiting
	// deliveries whose fingerprint matches an existing upload.
	Create(ctx context.Context, req CreateUploadRequest) (CreateUploadResult, error)
	Get(ctx context.Context, id string) (*Upload, error)
	List(ctx context.Context, req ListUploadsRequest) ([]Upload, error)
	// Transition moves the upload along PENDING -> PROCESSING ->
	// {COMPLETED, FAILED} under a row lock. Illegal transitions fail
	// without mutating status.
	Transition(ctx context.Context, id snowflake.ID, next Status) error
	// MarkFailed transitions to FAILED and records the cause.
	MarkFailed(ctx context.Context, id snowflake.ID, cause error) error
	// RecordCounts stores the run's row accounting on the upload.
	RecordCounts(ctx context.Context, id snowflake.ID, counts RunCounts) error
	// FindByObjectFingerprint looks up an upload by storage object identity.
	FindByObjectFingerprint(ctx context.Context, objectKey string, size int64, etag string) (*Upload, error)
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrNotFound          = errors.New("upload_not_found")
	ErrIllegalTransition = errors.New("illegal_status_transition")
	ErrInvalidRequest    = errors.New("invalid_upload_request")
)
