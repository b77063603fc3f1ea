package service

import (
	"strconv"
	"strings"
	"time"

	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	"github.com/costplane/costplane/internal/provider"
)

// autoAcceptThreshold is the minimum confidence for a suggestion to be
// upserted into the confirmed-mapping table without review.
const autoAcceptThreshold = 0.8

// Suggest scores every (source column -> internal field) candidate for the
// given headers against the field catalog. Name similarity carries most of
// the weight; a sample of parsed rows contributes value-shape evidence for
// numeric and timestamp fields.
func (s *Service) Suggest(headers []string, sample [][]string) []mappingdomain.Suggestion {
	suggestions := make([]mappingdomain.Suggestion, 0, len(headers))

	for idx, header := range headers {
		normalized := mappingdomain.NormalizeHeader(header)
		if normalized == "" {
			continue
		}

		var best *mappingdomain.Suggestion
		for _, field := range provider.Fields {
			score, reasons := scoreName(normalized, field)
			if score == 0 {
				continue
			}
			if bonus, reason := scoreValues(field, columnValues(sample, idx)); bonus > 0 {
				score += bonus
				reasons = append(reasons, reason)
			}
			if score > 1 {
				score = 1
			}
			if best == nil || score > best.Confidence {
				best = &mappingdomain.Suggestion{
					SourceColumn: header,
					TargetField:  field,
					Confidence:   score,
					Reasons:      reasons,
				}
			}
		}
		if best == nil {
			continue
		}
		best.AutoMapped = best.Confidence >= autoAcceptThreshold
		suggestions = append(suggestions, *best)
	}

	return suggestions
}

func scoreName(normalized string, field provider.Field) (float64, []string) {
	for _, alias := range provider.Aliases(field) {
		if normalized == alias {
			return 0.95, []string{"exact match on known column name " + alias}
		}
	}
	for _, alias := range provider.Aliases(field) {
		if strings.Contains(normalized, alias) || strings.Contains(alias, normalized) {
			return 0.6, []string{"partial match on known column name " + alias}
		}
	}
	if overlap := tokenOverlap(normalized, mappingdomain.NormalizeHeader(string(field))); overlap > 0 {
		return 0.3 * overlap, []string{"name resembles field " + string(field)}
	}
	return 0, nil
}

// tokenOverlap is the fraction of the field name's trigrams present in the
// column name. Crude, but good enough to rank "total_cost" under billed_cost.
func tokenOverlap(column, field string) float64 {
	if len(field) < 3 {
		return 0
	}
	matched := 0
	total := 0
	for i := 0; i+3 <= len(field); i++ {
		total++
		if strings.Contains(column, field[i:i+3]) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	ratio := float64(matched) / float64(total)
	if ratio < 0.5 {
		return 0
	}
	return ratio
}

func columnValues(sample [][]string, idx int) []string {
	values := make([]string, 0, len(sample))
	for _, record := range sample {
		if idx >= len(record) {
			continue
		}
		v := strings.TrimSpace(record[idx])
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

func scoreValues(field provider.Field, values []string) (float64, string) {
	if len(values) == 0 {
		return 0, ""
	}
	switch field {
	case provider.FieldBilledCost, provider.FieldConsumedQuantity:
		if allNumeric(values) {
			return 0.15, "sampled values are numeric"
		}
	case provider.FieldChargePeriodStart, provider.FieldChargePeriodEnd:
		if allTimestamps(values) {
			return 0.15, "sampled values parse as timestamps"
		}
	case provider.FieldCurrency:
		if allCurrencyCodes(values) {
			return 0.15, "sampled values look like currency codes"
		}
	}
	return 0, ""
}

func allNumeric(values []string) bool {
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func allTimestamps(values []string) bool {
	for _, v := range values {
		if !parsesAsTime(v) {
			return false
		}
	}
	return true
}

func parsesAsTime(v string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func allCurrencyCodes(values []string) bool {
	for _, v := range values {
		if len(v) != 3 || strings.ToUpper(v) != v {
			return false
		}
	}
	return true
}
