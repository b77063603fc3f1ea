package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/costplane/costplane/internal/tenantctx"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
	"github.com/costplane/costplane/pkg/db/option"
	"github.com/costplane/costplane/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	uploads repository.Repository[uploaddomain.Upload]
}

func NewService(p ServiceParam) uploaddomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("upload.service"),
		genID: p.GenID,

		uploads: repository.ProvideStore[uploaddomain.Upload](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req uploaddomain.CreateUploadRequest) (uploaddomain.CreateUploadResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return uploaddomain.CreateUploadResult{}, uploaddomain.ErrInvalidTenant
	}
	if strings.TrimSpace(req.FileName) == "" || strings.TrimSpace(req.Checksum) == "" {
		return uploaddomain.CreateUploadResult{}, uploaddomain.ErrInvalidRequest
	}

	now := time.Now().UTC()
	record := &uploaddomain.Upload{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		FileName:      req.FileName,
		FileSize:      req.FileSize,
		Checksum:      req.Checksum,
		Bucket:        req.Bucket,
		ObjectKey:     req.ObjectKey,
		Region:        req.Region,
		ETag:          req.ETag,
		BillingPeriod: req.BillingPeriod,
		Status:        uploaddomain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Insert-or-ignore on the fingerprint tuple; a second delivery of the
	// same (tenant, file, size, checksum) resolves to the first upload.
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "file_name"}, {Name: "file_size"}, {Name: "checksum"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return uploaddomain.CreateUploadResult{}, result.Error
	}
	if result.RowsAffected > 0 {
		return uploaddomain.CreateUploadResult{Upload: record}, nil
	}

	existing, err := s.uploads.FindOne(ctx, &uploaddomain.Upload{
		TenantID: tenantID,
		FileName: req.FileName,
		FileSize: req.FileSize,
		Checksum: req.Checksum,
	})
	if err != nil {
		return uploaddomain.CreateUploadResult{}, err
	}
	if existing == nil {
		return uploaddomain.CreateUploadResult{}, uploaddomain.ErrNotFound
	}
	return uploaddomain.CreateUploadResult{Upload: existing, Duplicate: true}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*uploaddomain.Upload, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, uploaddomain.ErrInvalidTenant
	}
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return nil, uploaddomain.ErrNotFound
	}
	record, err := s.uploads.FindOne(ctx, &uploaddomain.Upload{ID: parsed, TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, uploaddomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, req uploaddomain.ListUploadsRequest) ([]uploaddomain.Upload, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, uploaddomain.ErrInvalidTenant
	}

	filter := &uploaddomain.Upload{TenantID: tenantID}
	if req.Status != "" {
		filter.Status = uploaddomain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	}
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > 250 {
		pageSize = 50
	}

	items, err := s.uploads.Find(ctx, filter,
		option.WithOrder("created_at DESC"),
		option.WithLimit(pageSize),
	)
	if err != nil {
		return nil, err
	}

	records := make([]uploaddomain.Upload, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}
	return records, nil
}

func (s *Service) Transition(ctx context.Context, id snowflake.ID, next uploaddomain.Status) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockUpload(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == next {
			return nil
		}
		if !uploaddomain.CanTransition(current.Status, next) {
			return fmt.Errorf("%w: %s -> %s", uploaddomain.ErrIllegalTransition, current.Status, next)
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":     next,
			"updated_at": now,
		}
		switch next {
		case uploaddomain.StatusProcessing:
			updates["started_at"] = now
		case uploaddomain.StatusCompleted, uploaddomain.StatusFailed:
			updates["finished_at"] = now
		}
		return s.uploads.WithTrx(tx).Update(ctx, id.String(), updates)
	})
}

func (s *Service) MarkFailed(ctx context.Context, id snowflake.ID, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockUpload(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != uploaddomain.StatusFailed && !uploaddomain.CanTransition(current.Status, uploaddomain.StatusFailed) {
			return fmt.Errorf("%w: %s -> %s", uploaddomain.ErrIllegalTransition, current.Status, uploaddomain.StatusFailed)
		}
		now := time.Now().UTC()
		return s.uploads.WithTrx(tx).Update(ctx, id.String(), map[string]any{
			"status":      uploaddomain.StatusFailed,
			"error":       message,
			"finished_at": now,
			"updated_at":  now,
		})
	})
}

func (s *Service) RecordCounts(ctx context.Context, id snowflake.ID, counts uploaddomain.RunCounts) error {
	return s.uploads.Update(ctx, id.String(), map[string]any{
		"rows_total":    counts.RowsTotal,
		"rows_skipped":  counts.RowsSkipped,
		"facts_written": counts.FactsWritten,
		"updated_at":    time.Now().UTC(),
	})
}

func (s *Service) FindByObjectFingerprint(ctx context.Context, objectKey string, size int64, etag string) (*uploaddomain.Upload, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, uploaddomain.ErrInvalidTenant
	}
	return s.uploads.FindOne(ctx, &uploaddomain.Upload{
		TenantID:  tenantID,
		ObjectKey: objectKey,
		FileSize:  size,
		ETag:      etag,
	})
}

// lockUpload loads the row FOR UPDATE so concurrent transitions on the same
// upload serialize. SQLite serializes writers on its own and rejects the
// locking clause, so it is applied on postgres only.
func (s *Service) lockUpload(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*uploaddomain.Upload, error) {
	stmt := tx.WithContext(ctx)
	if strings.EqualFold(s.db.Dialector.Name(), "postgres") {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var record uploaddomain.Upload
	if err := stmt.Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, uploaddomain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}
