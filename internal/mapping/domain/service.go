package domain

import (
	"context"
	"errors"

	"github.com/costplane/costplane/internal/provider"
)

// Suggestion is one scored mapping candidate for a source column.
type Suggestion struct {
	SourceColumn string         `json:"source_column"`
	TargetField  provider.Field `json:"target_field"`
	Confidence   float64        `json:"confidence"`
	Reasons      []string       `json:"reasons"`
	AutoMapped   bool           `json:"auto_mapped"`
}

// ResolvedMapping maps each internal field to the actual source header to
// read, for one concrete file. Fields with no usable source are absent.
type ResolvedMapping map[provider.Field]string

// MappedRow is one source row projected onto the internal schema. Fields the
// mapping could not supply are absent and render as null downstream.
type MappedRow map[provider.Field]string

type ConfirmMappingRequest struct {
	Provider     string `json:"provider"`
	TargetField  string `json:"target_field"`
	SourceColumn string `json:"source_column"`
}

type Service interface {
	RecordDetectedColumns(ctx context.Context, prov provider.Provider, headers []string) error
	Suggest(headers []string, sample [][]string) []Suggestion
	PersistSuggestions(ctx context.Context, prov provider.Provider, suggestions []Suggestion) error
	ResolveMapping(ctx context.Context, prov provider.Provider, headers []string) (ResolvedMapping, error)
	ConfirmMapping(ctx context.Context, req ConfirmMappingRequest) (*ColumnMapping, error)
	ListMappings(ctx context.Context, prov provider.Provider) ([]ColumnMapping, error)
	ListSuggestions(ctx context.Context, prov provider.Provider) ([]MappingSuggestion, error)
	ListDetectedColumns(ctx context.Context, prov provider.Provider) ([]DetectedColumn, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidField  = errors.New("invalid_field")
)
