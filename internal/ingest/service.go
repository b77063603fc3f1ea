package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/costplane/costplane/internal/config"
	dimensiondomain "github.com/costplane/costplane/internal/dimension/domain"
	"github.com/costplane/costplane/internal/fact/buffer"
	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	"github.com/costplane/costplane/internal/observability/metrics"
	"github.com/costplane/costplane/internal/provider"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
)

// sampleSize caps how many leading records feed mapping suggestion scoring.
const sampleSize = 200

// Report is the row accounting for one ingestion run. RowsTotal counts every
// data record read; FactsWritten and RowsSkipped partition the rows that
// reached dimension resolution, and RowsAttempted is their sum.
type Report struct {
	RowsTotal     int `json:"rows_total"`
	RowsAttempted int `json:"rows_attempted"`
	RowsSkipped   int `json:"rows_skipped"`
	FactsWritten  int `json:"facts_written"`
}

// Service runs one upload through the full ingestion pipeline and drives its
// status transitions.
type Service interface {
	Run(ctx context.Context, upload *uploaddomain.Upload, source RowSource) (Report, error)
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Config config.Config

	Mappings   mappingdomain.Service
	Dimensions dimensiondomain.Service
	Uploads    uploaddomain.Service
}

type service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	config config.Config

	mappings   mappingdomain.Service
	dimensions dimensiondomain.Service
	uploads    uploaddomain.Service
}

func NewService(p ServiceParam) Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("ingest.service"),
		genID:      p.GenID,
		config:     p.Config,
		mappings:   p.Mappings,
		dimensions: p.Dimensions,
		uploads:    p.Uploads,
	}
}

// Run moves the upload to PROCESSING, streams the file through mapping and
// dimension resolution into the fact buffer, and lands on COMPLETED or
// FAILED. The returned report is valid on success only.
func (s *service) Run(ctx context.Context, upload *uploaddomain.Upload, source RowSource) (Report, error) {
	if err := s.uploads.Transition(ctx, upload.ID, uploaddomain.StatusProcessing); err != nil {
		return Report{}, err
	}
	metrics.UploadsTransitioned.WithLabelValues(string(uploaddomain.StatusProcessing)).Inc()

	report, err := s.run(ctx, upload, source)
	if err != nil {
		if markErr := s.uploads.MarkFailed(ctx, upload.ID, err); markErr != nil {
			s.log.Error("mark failed", zap.String("upload_id", upload.ID.String()), zap.Error(markErr))
		}
		metrics.UploadsTransitioned.WithLabelValues(string(uploaddomain.StatusFailed)).Inc()
		return Report{}, err
	}

	if err := s.uploads.RecordCounts(ctx, upload.ID, uploaddomain.RunCounts{
		RowsTotal:    report.RowsTotal,
		RowsSkipped:  report.RowsSkipped,
		FactsWritten: report.FactsWritten,
	}); err != nil {
		return Report{}, err
	}
	if err := s.uploads.Transition(ctx, upload.ID, uploaddomain.StatusCompleted); err != nil {
		return Report{}, err
	}
	metrics.UploadsTransitioned.WithLabelValues(string(uploaddomain.StatusCompleted)).Inc()

	s.log.Info("ingestion completed",
		zap.String("upload_id", upload.ID.String()),
		zap.Int("rows_total", report.RowsTotal),
		zap.Int("rows_skipped", report.RowsSkipped),
		zap.Int("facts_written", report.FactsWritten),
	)
	return report, nil
}

func (s *service) run(ctx context.Context, upload *uploaddomain.Upload, source RowSource) (Report, error) {
	headers, err := source.Headers()
	if err != nil {
		return Report{}, err
	}

	prov := provider.Detect(headers)
	if err := s.stampProvider(ctx, upload.ID, prov); err != nil {
		return Report{}, err
	}
	if err := s.mappings.RecordDetectedColumns(ctx, prov, headers); err != nil {
		return Report{}, err
	}

	sample, sampleEOF, err := readSample(source)
	if err != nil {
		return Report{}, err
	}

	suggestions := s.mappings.Suggest(headers, sample)
	if err := s.mappings.PersistSuggestions(ctx, prov, suggestions); err != nil {
		return Report{}, err
	}

	resolved, err := s.mappings.ResolveMapping(ctx, prov, headers)
	if err != nil {
		return Report{}, err
	}
	compiled := mappingdomain.Compile(resolved, headers)

	threshold := s.config.FlushThreshold
	if threshold <= 0 {
		threshold = buffer.DefaultFlushThreshold
	}
	buf := buffer.New(s.db, s.genID, upload.TenantID, threshold)

	var report Report
	known := dimensiondomain.IDMap{}
	batch := make([]mappingdomain.MappedRow, 0, threshold)

	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		keys := dimensiondomain.Collect(batch, known)
		if !keys.Empty() {
			if err := s.dimensions.UpsertKeys(ctx, prov, keys); err != nil {
				return err
			}
			maps, err := s.dimensions.LoadMaps(ctx, prov)
			if err != nil {
				return err
			}
			known = maps
		}
		for _, row := range batch {
			ids, ok := dimensiondomain.Resolve(row, known)
			if !ok {
				report.RowsSkipped++
				continue
			}
			report.FactsWritten++
			if buf.Push(upload.ID, row, ids) {
				if err := buf.Flush(ctx); err != nil {
					return err
				}
			}
		}
		batch = batch[:0]
		return nil
	}

	consume := func(record []string) error {
		report.RowsTotal++
		batch = append(batch, compiled.Apply(record))
		if len(batch) >= threshold {
			return flushBatch()
		}
		return nil
	}

	for _, record := range sample {
		if err := consume(record); err != nil {
			return Report{}, err
		}
	}

	for !sampleEOF {
		record, err := source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Report{}, err
		}
		if err := consume(record); err != nil {
			return Report{}, err
		}
	}

	if err := flushBatch(); err != nil {
		return Report{}, err
	}
	if err := buf.Flush(ctx); err != nil {
		return Report{}, err
	}

	report.RowsAttempted = report.FactsWritten + report.RowsSkipped

	metrics.RowsIngested.WithLabelValues(string(prov)).Add(float64(report.FactsWritten))
	metrics.RowsSkipped.WithLabelValues(string(prov)).Add(float64(report.RowsSkipped))
	return report, nil
}

// readSample buffers the leading records used for suggestion scoring. The
// sampled records are still ingested; they are replayed ahead of the rest of
// the stream.
func readSample(source RowSource) ([][]string, bool, error) {
	sample := make([][]string, 0, sampleSize)
	for len(sample) < sampleSize {
		record, err := source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sample, true, nil
			}
			return nil, false, err
		}
		sample = append(sample, record)
	}
	return sample, false, nil
}

func (s *service) stampProvider(ctx context.Context, id snowflake.ID, prov provider.Provider) error {
	return s.db.WithContext(ctx).
		Model(&uploaddomain.Upload{}).
		Where("id = ?", id).
		Update("provider", string(prov)).Error
}
