package server

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/costplane/costplane/internal/ingest"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
)

type uploadResponse struct {
	ID            string     `json:"id"`
	FileName      string     `json:"file_name"`
	FileSize      int64      `json:"file_size"`
	Checksum      string     `json:"checksum"`
	Provider      string     `json:"provider,omitempty"`
	BillingPeriod string     `json:"billing_period,omitempty"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	RowsTotal     int        `json:"rows_total"`
	RowsSkipped   int        `json:"rows_skipped"`
	FactsWritten  int        `json:"facts_written"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toUploadResponse(u *uploaddomain.Upload) uploadResponse {
	return uploadResponse{
		ID:            u.ID.String(),
		FileName:      u.FileName,
		FileSize:      u.FileSize,
		Checksum:      u.Checksum,
		Provider:      u.Provider,
		BillingPeriod: u.BillingPeriod,
		Status:        string(u.Status),
		Error:         u.Error,
		RowsTotal:     u.RowsTotal,
		RowsSkipped:   u.RowsSkipped,
		FactsWritten:  u.FactsWritten,
		StartedAt:     u.StartedAt,
		FinishedAt:    u.FinishedAt,
		CreatedAt:     u.CreatedAt,
	}
}

// CreateUpload accepts a billing export file, registers it and runs the
// ingestion synchronously. A file whose fingerprint was seen before is
// acknowledged without re-ingesting.
func (s *Server) CreateUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "missing_file", "file is required"))
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "costplane-upload-*")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), file)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	checksum := hex.EncodeToString(hash.Sum(nil))

	ctx := c.Request.Context()
	result, err := s.uploadSvc.Create(ctx, uploaddomain.CreateUploadRequest{
		FileName:      header.Filename,
		FileSize:      size,
		Checksum:      checksum,
		BillingPeriod: strings.TrimSpace(c.PostForm("billing_period")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{
			"data":      toUploadResponse(result.Upload),
			"duplicate": true,
		})
		return
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		AbortWithError(c, err)
		return
	}

	var reader io.Reader = tmp
	if strings.HasSuffix(strings.ToLower(header.Filename), ".gz") {
		gz, err := gzip.NewReader(tmp)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		defer gz.Close()
		reader = gz
	}

	report, err := s.ingestSvc.Run(ctx, result.Upload, ingest.NewReaderSource(reader))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	upload, err := s.uploadSvc.Get(ctx, result.Upload.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   toUploadResponse(upload),
		"report": report,
	})
}

func (s *Server) ListUploads(c *gin.Context) {
	var query uploaddomain.ListUploadsRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	uploads, err := s.uploadSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]uploadResponse, 0, len(uploads))
	for i := range uploads {
		resp = append(resp, toUploadResponse(&uploads[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUpload(c *gin.Context) {
	upload, err := s.uploadSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toUploadResponse(upload)})
}
