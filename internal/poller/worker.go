// Package poller discovers new billing export objects in tenant buckets.
package poller

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/costplane/costplane/internal/config"
	"github.com/costplane/costplane/internal/ingest"
	integrationdomain "github.com/costplane/costplane/internal/integration/domain"
	"github.com/costplane/costplane/internal/observability/metrics"
	"github.com/costplane/costplane/internal/storage"
	"github.com/costplane/costplane/internal/tenantctx"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
)

type WorkerParam struct {
	fx.In

	Log    *zap.Logger
	Config config.Config

	Integrations integrationdomain.Service
	Uploads      uploaddomain.Service
	Ingest       ingest.Service
	Clients      storage.ClientFactory
}

// Worker walks every enabled integration, registers unseen objects as
// uploads and runs them through ingestion.
type Worker struct {
	log      *zap.Logger
	interval time.Duration

	integrations integrationdomain.Service
	uploads      uploaddomain.Service
	ingest       ingest.Service
	clients      storage.ClientFactory
}

func NewWorker(p WorkerParam) *Worker {
	interval := p.Config.PollInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{
		log:          p.Log.Named("poller"),
		interval:     interval,
		integrations: p.Integrations,
		uploads:      p.Uploads,
		ingest:       p.Ingest,
		clients:      p.Clients,
	}
}

// RunOnce performs a single poll pass. Integrations are handled
// sequentially and one failure never stops the others; the joined error
// reports everything that went wrong.
func (w *Worker) RunOnce(ctx context.Context) error {
	integrations, err := w.integrations.ListEnabled(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for i := range integrations {
		integ := integrations[i]
		if err := w.PollOne(ctx, &integ); err != nil {
			errs = append(errs, fmt.Errorf("integration %s: %w", integ.ID, err))
		}
	}

	metrics.PollRuns.Inc()
	if len(errs) > 0 {
		metrics.PollErrors.Inc()
	}
	return errors.Join(errs...)
}

// PollOne polls a single integration and records the outcome on it.
func (w *Worker) PollOne(ctx context.Context, integ *integrationdomain.StorageIntegration) error {
	if err := w.pollIntegration(ctx, integ); err != nil {
		w.log.Error("poll integration",
			zap.String("integration_id", integ.ID.String()),
			zap.String("bucket", integ.Bucket),
			zap.Error(err),
		)
		if recErr := w.integrations.RecordPollError(ctx, integ.ID, err); recErr != nil {
			return errors.Join(err, recErr)
		}
		return err
	}
	return w.integrations.RecordPollSuccess(ctx, integ.ID, time.Now().UTC())
}

// RunForever polls on the configured interval until the context ends.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Error("poll pass", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) pollIntegration(ctx context.Context, integ *integrationdomain.StorageIntegration) error {
	ctx = tenantctx.WithTenantID(ctx, integ.TenantID)

	client, err := w.clients.ClientFor(integ)
	if err != nil {
		return err
	}

	objects, err := storage.ListObjects(ctx, client, integ.Bucket, integ.Prefix)
	if err != nil {
		return err
	}

	var errs []error
	for _, obj := range objects {
		if !ingestible(obj) {
			continue
		}
		if err := w.processObject(ctx, integ, client, obj); err != nil {
			errs = append(errs, fmt.Errorf("object %s: %w", obj.Key, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) processObject(ctx context.Context, integ *integrationdomain.StorageIntegration, client s3iface.S3API, obj storage.ObjectInfo) error {
	checksum := objectChecksum(obj)

	// A matching fingerprint means the object was already ingested or is
	// being ingested; re-listing it is not an error.
	existing, err := w.uploads.FindByObjectFingerprint(ctx, obj.Key, obj.Size, obj.ETag)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	result, err := w.uploads.Create(ctx, uploaddomain.CreateUploadRequest{
		FileName:  objectFileName(obj.Key),
		FileSize:  obj.Size,
		Checksum:  checksum,
		Bucket:    integ.Bucket,
		ObjectKey: obj.Key,
		Region:    integ.Region,
		ETag:      obj.ETag,
	})
	if err != nil {
		return err
	}
	if result.Duplicate {
		return nil
	}

	w.log.Info("object discovered",
		zap.String("upload_id", result.Upload.ID.String()),
		zap.String("bucket", integ.Bucket),
		zap.String("key", obj.Key),
	)

	body, err := storage.OpenObject(ctx, client, integ.Bucket, obj.Key)
	if err != nil {
		if markErr := w.uploads.MarkFailed(ctx, result.Upload.ID, err); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}
	defer body.Close()

	_, err = w.ingest.Run(ctx, result.Upload, ingest.NewReaderSource(body))
	return err
}

// ingestible filters object listings down to billing export files.
func ingestible(obj storage.ObjectInfo) bool {
	if obj.Size == 0 || strings.HasSuffix(obj.Key, "/") {
		return false
	}
	key := strings.ToLower(obj.Key)
	return strings.HasSuffix(key, ".csv") || strings.HasSuffix(key, ".csv.gz")
}

func objectChecksum(obj storage.ObjectInfo) string {
	return strings.Trim(obj.ETag, `"`)
}

func objectFileName(key string) string {
	return path.Base(key)
}
