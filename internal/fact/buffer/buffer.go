// Package buffer stages resolved billing rows for bulk insertion.
package buffer

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	dimensiondomain "github.com/costplane/costplane/internal/dimension/domain"
	factdomain "github.com/costplane/costplane/internal/fact/domain"
	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	"github.com/costplane/costplane/internal/provider"
	"github.com/costplane/costplane/pkg/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultFlushThreshold is the row count at which Push asks for a flush.
const DefaultFlushThreshold = 500

// Buffer accumulates fact rows for one ingestion run and writes them in
// bulk. It is owned by the orchestrator of that run; it is not shared state.
type Buffer struct {
	facts     repository.Repository[factdomain.BillingFact]
	genID     *snowflake.Node
	tenantID  snowflake.ID
	threshold int

	rows []*factdomain.BillingFact
}

func New(db *gorm.DB, genID *snowflake.Node, tenantID snowflake.ID, threshold int) *Buffer {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &Buffer{
		facts:     repository.ProvideStore[factdomain.BillingFact](db),
		genID:     genID,
		tenantID:  tenantID,
		threshold: threshold,
		rows:      make([]*factdomain.BillingFact, 0, threshold),
	}
}

// Push appends one fact candidate and reports whether the buffer has reached
// its flush threshold. The caller flushes when it returns true, and always
// flushes once more at the end of the run.
func (b *Buffer) Push(uploadID snowflake.ID, row mappingdomain.MappedRow, ids dimensiondomain.IDs) bool {
	fact := &factdomain.BillingFact{
		ID:       b.genID.Generate(),
		TenantID: b.tenantID,
		UploadID: uploadID,

		AccountID:            *ids.AccountID,
		ServiceID:            *ids.ServiceID,
		RegionID:             *ids.RegionID,
		ResourceID:           ids.ResourceID,
		SKUID:                ids.SKUID,
		CommitmentDiscountID: ids.CommitmentDiscountID,

		BilledCost:       parseFloat(row[provider.FieldBilledCost]),
		ConsumedQuantity: parseOptionalFloat(row[provider.FieldConsumedQuantity]),

		ChargePeriodStart: parseTime(row[provider.FieldChargePeriodStart]),
		ChargePeriodEnd:   parseTime(row[provider.FieldChargePeriodEnd]),

		ChargeDescription: row[provider.FieldChargeDescription],
		ChargeCategory:    row[provider.FieldChargeCategory],
		Currency:          strings.ToUpper(row[provider.FieldCurrency]),
		Tags:              parseTags(row[provider.FieldTags]),

		CreatedAt: time.Now().UTC(),
	}

	b.rows = append(b.rows, fact)
	return len(b.rows) >= b.threshold
}

// Flush bulk-inserts everything currently buffered and clears the buffer.
func (b *Buffer) Flush(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := b.facts.BatchCreate(ctx, b.rows); err != nil {
		return err
	}
	b.rows = b.rows[:0]
	return nil
}

// Reset discards anything buffered without writing it.
func (b *Buffer) Reset() {
	b.rows = b.rows[:0]
}

// Len returns the number of rows currently staged.
func (b *Buffer) Len() int { return len(b.rows) }

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseOptionalFloat(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

// parseTags accepts a JSON object column where exports provide one, and
// falls back to storing the raw value under a single key.
func parseTags(value string) datatypes.JSONMap {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var tags map[string]any
	if err := json.Unmarshal([]byte(value), &tags); err == nil {
		return datatypes.JSONMap(tags)
	}
	return datatypes.JSONMap{"raw": value}
}
