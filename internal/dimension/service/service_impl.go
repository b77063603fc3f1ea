package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	dimensiondomain "github.com/costplane/costplane/internal/dimension/domain"
	"github.com/costplane/costplane/internal/provider"
	"github.com/costplane/costplane/internal/tenantctx"
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
}

func NewService(p ServiceParam) dimensiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("dimension.service"),
		genID: p.GenID,
	}
}

func (s *Service) UpsertKeys(ctx context.Context, prov provider.Provider, keys dimensiondomain.KeySet) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return dimensiondomain.ErrInvalidTenant
	}
	if keys.Empty() {
		return nil
	}

	now := time.Now().UTC()

	// All kinds in one transaction: dimensions for a batch are all-or-nothing.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if values := sorted(keys[dimensiondomain.KindAccount]); len(values) > 0 {
			rows := make([]dimensiondomain.Account, 0, len(values))
			for _, v := range values {
				rows = append(rows, dimensiondomain.Account{
					ID: s.genID.Generate(), TenantID: tenantID, Provider: string(prov), AccountID: v, CreatedAt: now,
				})
			}
			if err := insertIgnoring(tx, &rows, "tenant_id", "provider", "account_id"); err != nil {
				return err
			}
		}
		if values := sorted(keys[dimensiondomain.KindService]); len(values) > 0 {
			rows := make([]dimensiondomain.CloudService, 0, len(values))
			for _, v := range values {
				rows = append(rows, dimensiondomain.CloudService{
					ID: s.genID.Generate(), TenantID: tenantID, ServiceName: v, CreatedAt: now,
				})
			}
			if err := insertIgnoring(tx, &rows, "tenant_id", "service_name"); err != nil {
				return err
			}
		}
		if values := sorted(keys[dimensiondomain.KindRegion]); len(values) > 0 {
			rows := make([]dimensiondomain.Region, 0, len(values))
			for _, v := range values {
				rows = append(rows, dimensiondomain.Region{
					ID: s.genID.Generate(), TenantID: tenantID, RegionCode: v, CreatedAt: now,
				})
			}
			if err := insertIgnoring(tx, &rows, "tenant_id", "region_code"); err != nil {
				return err
			}
		}
		if values := sorted(keys[dimensiondomain.KindResource]); len(values) > 0 {
			rows := make([]dimensiondomain.Resource, 0, len(values))
			for _, v := range values {
				rows = append(rows, dimensiondomain.Resource{
					ID: s.genID.Generate(), TenantID: tenantID, ResourceID: v, CreatedAt: now,
				})
			}
			if err := insertIgnoring(tx, &rows, "tenant_id", "resource_id"); err != nil {
				return err
			}
		}
		if values := sorted(keys[dimensiondomain.KindSKU]); len(values) > 0 {
			rows := make([]dimensiondomain.SKU, 0, len(values))
			for _, v := range values {
				rows = append(rows, dimensiondomain.SKU{
					ID: s.genID.Generate(), TenantID: tenantID, SKUID: v, CreatedAt: now,
				})
			}
			if err := insertIgnoring(tx, &rows, "tenant_id", "sku_id"); err != nil {
				return err
			}
		}
		if values := sorted(keys[dimensiondomain.KindCommitmentDiscount]); len(values) > 0 {
			rows := make([]dimensiondomain.CommitmentDiscount, 0, len(values))
			for _, v := range values {
				rows = append(rows, dimensiondomain.CommitmentDiscount{
					ID: s.genID.Generate(), TenantID: tenantID, CommitmentID: v, CreatedAt: now,
				})
			}
			if err := insertIgnoring(tx, &rows, "tenant_id", "commitment_id"); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) LoadMaps(ctx context.Context, prov provider.Provider) (dimensiondomain.IDMap, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, dimensiondomain.ErrInvalidTenant
	}

	maps := make(dimensiondomain.IDMap, len(dimensiondomain.Kinds))

	// Accounts share identifiers across providers, so the map is scoped to
	// the run's provider to keep lookups unambiguous.
	var accounts []dimensiondomain.Account
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND provider = ?", tenantID, string(prov)).Find(&accounts).Error; err != nil {
		return nil, err
	}
	maps[dimensiondomain.KindAccount] = make(map[string]snowflake.ID, len(accounts))
	for _, row := range accounts {
		maps[dimensiondomain.KindAccount][row.AccountID] = row.ID
	}

	var services []dimensiondomain.CloudService
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&services).Error; err != nil {
		return nil, err
	}
	maps[dimensiondomain.KindService] = make(map[string]snowflake.ID, len(services))
	for _, row := range services {
		maps[dimensiondomain.KindService][row.ServiceName] = row.ID
	}

	var regions []dimensiondomain.Region
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&regions).Error; err != nil {
		return nil, err
	}
	maps[dimensiondomain.KindRegion] = make(map[string]snowflake.ID, len(regions))
	for _, row := range regions {
		maps[dimensiondomain.KindRegion][row.RegionCode] = row.ID
	}

	var resources []dimensiondomain.Resource
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&resources).Error; err != nil {
		return nil, err
	}
	maps[dimensiondomain.KindResource] = make(map[string]snowflake.ID, len(resources))
	for _, row := range resources {
		maps[dimensiondomain.KindResource][row.ResourceID] = row.ID
	}

	var skus []dimensiondomain.SKU
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&skus).Error; err != nil {
		return nil, err
	}
	maps[dimensiondomain.KindSKU] = make(map[string]snowflake.ID, len(skus))
	for _, row := range skus {
		maps[dimensiondomain.KindSKU][row.SKUID] = row.ID
	}

	var commitments []dimensiondomain.CommitmentDiscount
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&commitments).Error; err != nil {
		return nil, err
	}
	maps[dimensiondomain.KindCommitmentDiscount] = make(map[string]snowflake.ID, len(commitments))
	for _, row := range commitments {
		maps[dimensiondomain.KindCommitmentDiscount][row.CommitmentID] = row.ID
	}

	return maps, nil
}

func insertIgnoring[T any](tx *gorm.DB, rows *[]T, conflictColumns ...string) error {
	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, name := range conflictColumns {
		columns = append(columns, clause.Column{Name: name})
	}
	return tx.Clauses(clause.OnConflict{Columns: columns, DoNothing: true}).Create(rows).Error
}

func sorted(values map[string]struct{}) []string {
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	// Deterministic insert order keeps deadlock risk down on concurrent runs.
	sort.Strings(out)
	return out
}
