package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/costplane/costplane/internal/tenantctx"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
)

func newTestService(t *testing.T) (uploaddomain.Service, context.Context) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&uploaddomain.Upload{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})

	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())
	return svc, ctx
}

func createUpload(t *testing.T, svc uploaddomain.Service, ctx context.Context) *uploaddomain.Upload {
	t.Helper()
	result, err := svc.Create(ctx, uploaddomain.CreateUploadRequest{
		FileName: "billing-2026-08.csv",
		FileSize: 1024,
		Checksum: "abc123",
	})
	require.NoError(t, err)
	require.False(t, result.Duplicate)
	return result.Upload
}

func TestCreate_FingerprintDedup(t *testing.T) {
	svc, ctx := newTestService(t)

	first := createUpload(t, svc, ctx)

	// Same file delivered again resolves to the original upload.
	second, err := svc.Create(ctx, uploaddomain.CreateUploadRequest{
		FileName: "billing-2026-08.csv",
		FileSize: 1024,
		Checksum: "abc123",
	})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.Upload.ID)

	// A different checksum is a new upload.
	third, err := svc.Create(ctx, uploaddomain.CreateUploadRequest{
		FileName: "billing-2026-08.csv",
		FileSize: 1024,
		Checksum: "def456",
	})
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
	assert.NotEqual(t, first.ID, third.Upload.ID)
}

func TestCreate_RequiresFileNameAndChecksum(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.Create(ctx, uploaddomain.CreateUploadRequest{FileSize: 10, Checksum: "x"})
	assert.ErrorIs(t, err, uploaddomain.ErrInvalidRequest)

	_, err = svc.Create(ctx, uploaddomain.CreateUploadRequest{FileName: "a.csv", FileSize: 10})
	assert.ErrorIs(t, err, uploaddomain.ErrInvalidRequest)
}

func TestTransition_HappyPath(t *testing.T) {
	svc, ctx := newTestService(t)
	upload := createUpload(t, svc, ctx)

	require.NoError(t, svc.Transition(ctx, upload.ID, uploaddomain.StatusProcessing))

	record, err := svc.Get(ctx, upload.ID.String())
	require.NoError(t, err)
	assert.Equal(t, uploaddomain.StatusProcessing, record.Status)
	assert.NotNil(t, record.StartedAt)

	require.NoError(t, svc.Transition(ctx, upload.ID, uploaddomain.StatusCompleted))

	record, err = svc.Get(ctx, upload.ID.String())
	require.NoError(t, err)
	assert.Equal(t, uploaddomain.StatusCompleted, record.Status)
	assert.NotNil(t, record.FinishedAt)
}

func TestTransition_IllegalRejectedWithoutMutation(t *testing.T) {
	svc, ctx := newTestService(t)
	upload := createUpload(t, svc, ctx)

	require.NoError(t, svc.Transition(ctx, upload.ID, uploaddomain.StatusProcessing))
	require.NoError(t, svc.Transition(ctx, upload.ID, uploaddomain.StatusCompleted))

	err := svc.Transition(ctx, upload.ID, uploaddomain.StatusPending)
	assert.ErrorIs(t, err, uploaddomain.ErrIllegalTransition)

	err = svc.Transition(ctx, upload.ID, uploaddomain.StatusProcessing)
	assert.ErrorIs(t, err, uploaddomain.ErrIllegalTransition)

	record, err := svc.Get(ctx, upload.ID.String())
	require.NoError(t, err)
	assert.Equal(t, uploaddomain.StatusCompleted, record.Status)
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	svc, ctx := newTestService(t)
	upload := createUpload(t, svc, ctx)

	require.NoError(t, svc.Transition(ctx, upload.ID, uploaddomain.StatusProcessing))
	require.NoError(t, svc.Transition(ctx, upload.ID, uploaddomain.StatusProcessing))
}

func TestMarkFailed_RecordsCause(t *testing.T) {
	svc, ctx := newTestService(t)
	upload := createUpload(t, svc, ctx)

	require.NoError(t, svc.Transition(ctx, upload.ID, uploaddomain.StatusProcessing))
	require.NoError(t, svc.MarkFailed(ctx, upload.ID, errors.New("header row missing")))

	record, err := svc.Get(ctx, upload.ID.String())
	require.NoError(t, err)
	assert.Equal(t, uploaddomain.StatusFailed, record.Status)
	assert.Equal(t, "header row missing", record.Error)
	assert.NotNil(t, record.FinishedAt)
}

func TestRecordCounts(t *testing.T) {
	svc, ctx := newTestService(t)
	upload := createUpload(t, svc, ctx)

	require.NoError(t, svc.RecordCounts(ctx, upload.ID, uploaddomain.RunCounts{
		RowsTotal:    250,
		RowsSkipped:  10,
		FactsWritten: 240,
	}))

	record, err := svc.Get(ctx, upload.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 250, record.RowsTotal)
	assert.Equal(t, 10, record.RowsSkipped)
	assert.Equal(t, 240, record.FactsWritten)
}

func TestList_FilterByStatus(t *testing.T) {
	svc, ctx := newTestService(t)
	upload := createUpload(t, svc, ctx)

	_, err := svc.Create(ctx, uploaddomain.CreateUploadRequest{
		FileName: "other.csv",
		FileSize: 99,
		Checksum: "zzz",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Transition(ctx, upload.ID, uploaddomain.StatusProcessing))

	pending, err := svc.List(ctx, uploaddomain.ListUploadsRequest{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "other.csv", pending[0].FileName)

	all, err := svc.List(ctx, uploaddomain.ListUploadsRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFindByObjectFingerprint(t *testing.T) {
	svc, ctx := newTestService(t)

	result, err := svc.Create(ctx, uploaddomain.CreateUploadRequest{
		FileName:  "export.csv",
		FileSize:  2048,
		Checksum:  "etag-1",
		Bucket:    "tenant-bucket",
		ObjectKey: "exports/2026/08/export.csv",
		ETag:      `"etag-1"`,
	})
	require.NoError(t, err)

	found, err := svc.FindByObjectFingerprint(ctx, "exports/2026/08/export.csv", 2048, `"etag-1"`)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, result.Upload.ID, found.ID)

	missing, err := svc.FindByObjectFingerprint(ctx, "exports/2026/08/export.csv", 2048, `"etag-2"`)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGet_UnknownID(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.Get(ctx, "123456789")
	assert.ErrorIs(t, err, uploaddomain.ErrNotFound)
}
