package server

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/costplane/costplane/internal/ingest"
	integrationdomain "github.com/costplane/costplane/internal/integration/domain"
	"github.com/costplane/costplane/internal/storage"
	"github.com/costplane/costplane/internal/tenantctx"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
)

type storageEventRequest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Region string `json:"region"`
	Size   int64  `json:"size"`
	ETag   string `json:"etag"`
}

// HandleStorageEvent acknowledges a bucket object notification and ingests
// the object in the background. The 202 only promises the event was
// registered; progress is observable through the upload record.
func (s *Server) HandleStorageEvent(c *gin.Context) {
	var req storageEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Bucket == "" || req.Key == "" || req.Size <= 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()

	existing, err := s.uploadSvc.FindByObjectFingerprint(ctx, req.Key, req.Size, req.ETag)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "duplicate_ignored", "upload_id": existing.ID.String()})
		return
	}

	integ, err := s.integrationSvc.FindByBucket(ctx, req.Bucket)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	region := req.Region
	if region == "" {
		region = integ.Region
	}

	result, err := s.uploadSvc.Create(ctx, uploaddomain.CreateUploadRequest{
		FileName:  path.Base(req.Key),
		FileSize:  req.Size,
		Checksum:  strings.Trim(req.ETag, `"`),
		Bucket:    req.Bucket,
		ObjectKey: req.Key,
		Region:    region,
		ETag:      req.ETag,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.Duplicate {
		c.JSON(http.StatusAccepted, gin.H{"status": "duplicate_ignored", "upload_id": result.Upload.ID.String()})
		return
	}

	// The request context dies with the response; the background run gets
	// its own tenant-scoped context.
	tenantID, _ := tenantctx.TenantIDFromContext(ctx)
	runCtx := tenantctx.WithTenantID(context.Background(), tenantID)
	go s.ingestStorageObject(runCtx, integ, result.Upload, req)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "upload_id": result.Upload.ID.String()})
}

func (s *Server) ingestStorageObject(ctx context.Context, integ *integrationdomain.StorageIntegration, upload *uploaddomain.Upload, req storageEventRequest) {
	defer func() {
		if r := recover(); r != nil {
			s.failUpload(ctx, upload, fmt.Errorf("ingestion panic: %v", r))
		}
	}()

	client, err := s.storageClients.ClientFor(integ)
	if err != nil {
		s.failUpload(ctx, upload, err)
		return
	}

	body, err := storage.OpenObject(ctx, client, req.Bucket, req.Key)
	if err != nil {
		s.failUpload(ctx, upload, err)
		return
	}
	defer body.Close()

	// Run drives the status transitions itself, including FAILED.
	if _, err := s.ingestSvc.Run(ctx, upload, ingest.NewReaderSource(body)); err != nil {
		s.log.Error("storage event ingestion",
			zap.String("upload_id", upload.ID.String()),
			zap.String("key", req.Key),
			zap.Error(err),
		)
	}
}

func (s *Server) failUpload(ctx context.Context, upload *uploaddomain.Upload, cause error) {
	s.log.Error("storage event ingestion",
		zap.String("upload_id", upload.ID.String()),
		zap.Error(cause),
	)
	if err := s.uploadSvc.MarkFailed(ctx, upload.ID, cause); err != nil {
		s.log.Error("mark failed", zap.String("upload_id", upload.ID.String()), zap.Error(err))
	}
}
