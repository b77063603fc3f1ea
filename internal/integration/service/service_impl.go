package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/costplane/costplane/internal/integration/domain"
	"github.com/costplane/costplane/internal/storage"
	"github.com/costplane/costplane/internal/tenantctx"
	pkgdb "github.com/costplane/costplane/pkg/db"
	"github.com/costplane/costplane/pkg/db/option"
	"github.com/costplane/costplane/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Secrets *storage.Secrets
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	secrets *storage.Secrets

	integrations repository.Repository[domain.StorageIntegration]
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log.Named("integration.service"),
		genID:        p.GenID,
		secrets:      p.Secrets,
		integrations: repository.ProvideStore[domain.StorageIntegration](p.DB),
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateIntegrationRequest) (*domain.Response, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	if req.Bucket == "" || req.Region == "" {
		return nil, domain.ErrInvalidRequest
	}

	integ := domain.StorageIntegration{
		ID:       s.genID.Generate(),
		TenantID: tenantID,
		Bucket:   req.Bucket,
		Prefix:   req.Prefix,
		Region:   req.Region,
		AuthMode: domain.AuthMode(req.AuthMode),
		Enabled:  true,
	}

	switch integ.AuthMode {
	case domain.AuthModeRole:
		if req.RoleARN == "" {
			return nil, domain.ErrInvalidRequest
		}
		integ.RoleARN = req.RoleARN
	case domain.AuthModeKeys:
		if req.AccessKeyID == "" || req.SecretAccessKey == "" {
			return nil, domain.ErrInvalidRequest
		}
		ciphertext, err := s.secrets.Seal(req.SecretAccessKey)
		if err != nil {
			return nil, err
		}
		integ.AccessKeyID = req.AccessKeyID
		integ.SecretKeyCiphertext = ciphertext
	default:
		return nil, domain.ErrInvalidAuthMode
	}

	if err := s.integrations.Create(ctx, &integ); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}

	s.log.Info("integration created",
		zap.String("integration_id", integ.ID.String()),
		zap.String("bucket", integ.Bucket),
		zap.String("auth_mode", string(integ.AuthMode)),
	)

	resp := integ.ToResponse()
	return &resp, nil
}

func (s *service) List(ctx context.Context) ([]domain.Response, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}

	items, err := s.integrations.Find(ctx,
		&domain.StorageIntegration{TenantID: tenantID},
		option.WithOrder("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, item.ToResponse())
	}
	return resp, nil
}

func (s *service) Get(ctx context.Context, id string) (*domain.StorageIntegration, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}

	integID, err := snowflake.ParseString(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	integ, err := s.integrations.FindOne(ctx, &domain.StorageIntegration{ID: integID, TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	if integ == nil {
		return nil, domain.ErrNotFound
	}
	return integ, nil
}

func (s *service) FindByBucket(ctx context.Context, bucket string) (*domain.StorageIntegration, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}

	integ, err := s.integrations.FindOne(ctx, &domain.StorageIntegration{TenantID: tenantID, Bucket: bucket, Enabled: true})
	if err != nil {
		return nil, err
	}
	if integ == nil {
		return nil, domain.ErrNotFound
	}
	return integ, nil
}

func (s *service) ListEnabled(ctx context.Context) ([]domain.StorageIntegration, error) {
	items, err := s.integrations.Find(ctx,
		&domain.StorageIntegration{Enabled: true},
		option.WithOrder("id ASC"),
	)
	if err != nil {
		return nil, err
	}

	result := make([]domain.StorageIntegration, 0, len(items))
	for _, item := range items {
		result = append(result, *item)
	}
	return result, nil
}

func (s *service) RecordPollSuccess(ctx context.Context, id snowflake.ID, at time.Time) error {
	return s.integrations.Update(ctx, id.String(), map[string]any{
		"last_polled_at": at,
		"last_error":     "",
		"updated_at":     time.Now(),
	})
}

func (s *service) RecordPollError(ctx context.Context, id snowflake.ID, cause error) error {
	return s.integrations.Update(ctx, id.String(), map[string]any{
		"last_error": cause.Error(),
		"updated_at": time.Now(),
	})
}
