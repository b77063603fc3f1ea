package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/costplane/costplane/internal/config"
	"github.com/costplane/costplane/internal/integration/domain"
	"github.com/costplane/costplane/internal/storage"
	"github.com/costplane/costplane/internal/tenantctx"
)

func newTestService(t *testing.T) (domain.Service, context.Context, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.StorageIntegration{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	secrets, err := storage.NewSecrets(config.Config{SecretsKey: "test-secrets-key"})
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Secrets: secrets,
	})

	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())
	return svc, ctx, db
}

func roleRequest(bucket, prefix string) domain.CreateIntegrationRequest {
	return domain.CreateIntegrationRequest{
		Bucket:   bucket,
		Prefix:   prefix,
		Region:   "us-east-1",
		AuthMode: string(domain.AuthModeRole),
		RoleARN:  "arn:aws:iam::123456789012:role/billing-read",
	}
}

func TestCreate_DuplicateBucketPrefixRejected(t *testing.T) {
	svc, ctx, _ := newTestService(t)

	_, err := svc.Create(ctx, roleRequest("tenant-bucket", "exports/"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, roleRequest("tenant-bucket", "exports/"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// A different prefix on the same bucket is a distinct integration.
	_, err = svc.Create(ctx, roleRequest("tenant-bucket", "other/"))
	assert.NoError(t, err)
}

func TestCreate_KeysModeSealsSecret(t *testing.T) {
	svc, ctx, db := newTestService(t)

	_, err := svc.Create(ctx, domain.CreateIntegrationRequest{
		Bucket:          "tenant-bucket",
		Region:          "us-east-1",
		AuthMode:        string(domain.AuthModeKeys),
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "super-secret-value",
	})
	require.NoError(t, err)

	var stored domain.StorageIntegration
	require.NoError(t, db.First(&stored).Error)
	require.NotEmpty(t, stored.SecretKeyCiphertext)
	assert.NotContains(t, string(stored.SecretKeyCiphertext), "super-secret-value")
}

func TestCreate_RejectsUnknownAuthMode(t *testing.T) {
	svc, ctx, _ := newTestService(t)

	_, err := svc.Create(ctx, domain.CreateIntegrationRequest{
		Bucket:   "tenant-bucket",
		Region:   "us-east-1",
		AuthMode: "password",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAuthMode)
}

func TestRecordPollOutcome(t *testing.T) {
	svc, ctx, _ := newTestService(t)

	created, err := svc.Create(ctx, roleRequest("tenant-bucket", "exports/"))
	require.NoError(t, err)
	integ, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RecordPollError(ctx, integ.ID, errors.New("listing denied")))
	after, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "listing denied", after.LastError)

	polledAt := time.Now().UTC()
	require.NoError(t, svc.RecordPollSuccess(ctx, integ.ID, polledAt))
	after, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, after.LastError)
	require.NotNil(t, after.LastPolledAt)
}
