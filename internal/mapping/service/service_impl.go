package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	"github.com/costplane/costplane/internal/provider"
	"github.com/costplane/costplane/internal/tenantctx"
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

	mappings    repository.Repository[mappingdomain.ColumnMapping]
	suggestions repository.Repository[mappingdomain.MappingSuggestion]
	detected    repository.Repository[mappingdomain.DetectedColumn]
}

func NewService(p ServiceParam) mappingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("mapping.service"),
		genID: p.GenID,

		mappings:    repository.ProvideStore[mappingdomain.ColumnMapping](p.DB),
		suggestions: repository.ProvideStore[mappingdomain.MappingSuggestion](p.DB),
		detected:    repository.ProvideStore[mappingdomain.DetectedColumn](p.DB),
	}
}

func (s *Service) RecordDetectedColumns(ctx context.Context, prov provider.Provider, headers []string) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return mappingdomain.ErrInvalidTenant
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(headers))
	rows := make([]mappingdomain.DetectedColumn, 0, len(headers))
	for _, header := range headers {
		normalized := mappingdomain.NormalizeHeader(header)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		rows = append(rows, mappingdomain.DetectedColumn{
			ID:         s.genID.Generate(),
			TenantID:   tenantID,
			Provider:   string(prov),
			ColumnName: normalized,
			RawName:    header,
			CreatedAt:  now,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	// Re-seeing a known header is a no-op.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}, {Name: "column_name"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

func (s *Service) PersistSuggestions(ctx context.Context, prov provider.Provider, suggestions []mappingdomain.Suggestion) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return mappingdomain.ErrInvalidTenant
	}
	if len(suggestions) == 0 {
		return nil
	}

	now := time.Now().UTC()
	audit := make([]mappingdomain.MappingSuggestion, 0, len(suggestions))
	accepted := make([]mappingdomain.ColumnMapping, 0)
	for _, sugg := range suggestions {
		audit = append(audit, mappingdomain.MappingSuggestion{
			ID:           s.genID.Generate(),
			TenantID:     tenantID,
			Provider:     string(prov),
			SourceColumn: sugg.SourceColumn,
			TargetField:  string(sugg.TargetField),
			Confidence:   sugg.Confidence,
			Reasons:      sugg.Reasons,
			AutoMapped:   sugg.AutoMapped,
			CreatedAt:    now,
		})
		if sugg.AutoMapped {
			accepted = append(accepted, mappingdomain.ColumnMapping{
				ID:           s.genID.Generate(),
				TenantID:     tenantID,
				Provider:     string(prov),
				TargetField:  string(sugg.TargetField),
				SourceColumn: sugg.SourceColumn,
				Confidence:   sugg.Confidence,
				AutoMapped:   true,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
	}

	if err := s.db.WithContext(ctx).Create(&audit).Error; err != nil {
		return err
	}
	if len(accepted) == 0 {
		return nil
	}

	// An already-confirmed mapping for the field wins over a fresh auto
	// suggestion, so the tenant's learned state is stable across uploads.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}, {Name: "target_field"}},
			DoNothing: true,
		}).
		Create(&accepted).Error
}

func (s *Service) ResolveMapping(ctx context.Context, prov provider.Provider, headers []string) (mappingdomain.ResolvedMapping, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, mappingdomain.ErrInvalidTenant
	}

	configured, err := s.mappings.Find(ctx, &mappingdomain.ColumnMapping{
		TenantID: tenantID,
		Provider: string(prov),
	})
	if err != nil {
		return nil, err
	}

	exact := make(map[string]string, len(headers))
	normalized := make(map[string]string, len(headers))
	for _, h := range headers {
		exact[h] = h
		norm := mappingdomain.NormalizeHeader(h)
		if _, dup := normalized[norm]; !dup {
			normalized[norm] = h
		}
	}

	resolved := make(mappingdomain.ResolvedMapping, len(configured))
	for _, m := range configured {
		if header, ok := exact[m.SourceColumn]; ok {
			resolved[provider.Field(m.TargetField)] = header
			continue
		}
		if header, ok := normalized[mappingdomain.NormalizeHeader(m.SourceColumn)]; ok {
			resolved[provider.Field(m.TargetField)] = header
		}
		// Neither shape present in this file: the field stays unmapped.
	}
	return resolved, nil
}

func (s *Service) ConfirmMapping(ctx context.Context, req mappingdomain.ConfirmMappingRequest) (*mappingdomain.ColumnMapping, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, mappingdomain.ErrInvalidTenant
	}
	if !validField(req.TargetField) {
		return nil, mappingdomain.ErrInvalidField
	}

	now := time.Now().UTC()
	row := mappingdomain.ColumnMapping{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		Provider:     req.Provider,
		TargetField:  req.TargetField,
		SourceColumn: req.SourceColumn,
		Confidence:   1,
		AutoMapped:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}, {Name: "target_field"}},
			DoUpdates: clause.AssignmentColumns([]string{"source_column", "confidence", "auto_mapped", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) ListMappings(ctx context.Context, prov provider.Provider) ([]mappingdomain.ColumnMapping, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, mappingdomain.ErrInvalidTenant
	}
	items, err := s.mappings.Find(ctx,
		&mappingdomain.ColumnMapping{TenantID: tenantID, Provider: string(prov)},
		option.WithOrder("target_field"),
	)
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func (s *Service) ListSuggestions(ctx context.Context, prov provider.Provider) ([]mappingdomain.MappingSuggestion, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, mappingdomain.ErrInvalidTenant
	}
	items, err := s.suggestions.Find(ctx,
		&mappingdomain.MappingSuggestion{TenantID: tenantID, Provider: string(prov)},
		option.WithOrder("created_at DESC"),
		option.WithLimit(500),
	)
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func (s *Service) ListDetectedColumns(ctx context.Context, prov provider.Provider) ([]mappingdomain.DetectedColumn, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, mappingdomain.ErrInvalidTenant
	}
	items, err := s.detected.Find(ctx,
		&mappingdomain.DetectedColumn{TenantID: tenantID, Provider: string(prov)},
		option.WithOrder("column_name"),
	)
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func validField(name string) bool {
	for _, f := range provider.Fields {
		if string(f) == name {
			return true
		}
	}
	return false
}

func deref[T any](items []*T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out
}
