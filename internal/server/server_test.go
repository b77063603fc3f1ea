package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/costplane/costplane/internal/config"
	dimensionservice "github.com/costplane/costplane/internal/dimension/service"
	"github.com/costplane/costplane/internal/ingest"
	integrationdomain "github.com/costplane/costplane/internal/integration/domain"
	integrationservice "github.com/costplane/costplane/internal/integration/service"
	mappingservice "github.com/costplane/costplane/internal/mapping/service"
	"github.com/costplane/costplane/internal/migration"
	"github.com/costplane/costplane/internal/poller"
	"github.com/costplane/costplane/internal/storage"
	"github.com/costplane/costplane/internal/tenantctx"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
	uploadservice "github.com/costplane/costplane/internal/upload/service"
)

type fakeObject struct {
	body []byte
	etag string
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string]fakeObject
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if strings.HasPrefix(key, aws.StringValue(input.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	contents := make([]*s3.Object, 0, len(keys))
	for _, key := range keys {
		obj := f.objects[key]
		contents = append(contents, &s3.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.body))),
			ETag:         aws.String(obj.etag),
			LastModified: aws.Time(time.Now()),
		})
	}
	fn(&s3.ListObjectsV2Output{Contents: contents}, true)
	return nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, input *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[aws.StringValue(input.Key)]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", aws.StringValue(input.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}, nil
}

type fakeClientFactory struct {
	client s3iface.S3API
}

func (f *fakeClientFactory) ClientFor(*integrationdomain.StorageIntegration) (s3iface.S3API, error) {
	return f.client, nil
}

type serverEnv struct {
	engine   *gin.Engine
	tenantID snowflake.ID
	uploads  uploaddomain.Service
}

func newServerEnv(t *testing.T, client s3iface.S3API) *serverEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(migration.Models...))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	cfg := config.Config{HTTPAddr: ":0", SecretsKey: "test-secrets-key", FlushThreshold: 100}

	secrets, err := storage.NewSecrets(cfg)
	require.NoError(t, err)

	mappings := mappingservice.NewService(mappingservice.ServiceParam{DB: db, Log: logger, GenID: node})
	dimensions := dimensionservice.NewService(dimensionservice.ServiceParam{DB: db, Log: logger, GenID: node})
	uploads := uploadservice.NewService(uploadservice.ServiceParam{DB: db, Log: logger, GenID: node})
	integrations := integrationservice.NewService(integrationservice.ServiceParam{DB: db, Log: logger, GenID: node, Secrets: secrets})

	ingestSvc := ingest.NewService(ingest.ServiceParam{
		DB:         db,
		Log:        logger,
		GenID:      node,
		Config:     cfg,
		Mappings:   mappings,
		Dimensions: dimensions,
		Uploads:    uploads,
	})

	factory := &fakeClientFactory{client: client}
	worker := poller.NewWorker(poller.WorkerParam{
		Log:          logger,
		Config:       config.Config{PollInterval: time.Minute},
		Integrations: integrations,
		Uploads:      uploads,
		Ingest:       ingestSvc,
		Clients:      factory,
	})

	engine := NewEngine()
	NewServer(ServerParams{
		Gin:            engine,
		Cfg:            cfg,
		DB:             db,
		Log:            logger,
		GenID:          node,
		UploadSvc:      uploads,
		MappingSvc:     mappings,
		IntegrationSvc: integrations,
		IngestSvc:      ingestSvc,
		PollWorker:     worker,
		StorageClients: factory,
	})

	return &serverEnv{engine: engine, tenantID: node.Generate(), uploads: uploads}
}

func (e *serverEnv) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(HeaderTenant, e.tenantID.String())
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *serverEnv) postJSON(path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func multipartCSV(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

const testCSV = "lineItem/UsageAccountId,lineItem/ProductCode,product/region,lineItem/UnblendedCost\n" +
	"123456789012,AmazonEC2,us-east-1,1.25\n" +
	"123456789012,AmazonS3,us-east-1,0.50\n"

func TestAPI_RequiresTenantHeader(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_RejectsMalformedTenantHeader(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
	req.Header.Set(HeaderTenant, "not-a-snowflake")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateUpload_IngestsSynchronously(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	body, contentType := multipartCSV(t, "cur.csv", testCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
		Report struct {
			RowsTotal    int `json:"rows_total"`
			FactsWritten int `json:"facts_written"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "COMPLETED", resp.Data.Status)
	assert.Equal(t, 2, resp.Report.RowsTotal)
	assert.Equal(t, 2, resp.Report.FactsWritten)
}

func TestCreateUpload_DuplicateShortCircuits(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	body, contentType := multipartCSV(t, "cur.csv", testCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	require.Equal(t, http.StatusOK, env.do(req).Code)

	body, contentType = multipartCSV(t, "cur.csv", testCSV)
	req = httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Duplicate bool `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)
}

func TestCreateUpload_MissingFile(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUpload_NotFound(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	req := httptest.NewRequest(http.MethodGet, "/api/uploads/123456789", nil)
	rec := env.do(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorageEvent_AcceptedThenDuplicateIgnored(t *testing.T) {
	client := &fakeS3{objects: map[string]fakeObject{
		"exports/cur.csv": {body: []byte(testCSV), etag: `"etag-1"`},
	}}
	env := newServerEnv(t, client)

	rec := env.postJSON("/api/integrations", integrationdomain.CreateIntegrationRequest{
		Bucket:   "tenant-bucket",
		Prefix:   "exports/",
		Region:   "us-east-1",
		AuthMode: string(integrationdomain.AuthModeRole),
		RoleARN:  "arn:aws:iam::123456789012:role/billing-read",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	event := map[string]any{
		"bucket": "tenant-bucket",
		"key":    "exports/cur.csv",
		"size":   len(testCSV),
		"etag":   `"etag-1"`,
	}

	rec = env.postJSON("/api/storage-events", event)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var first struct {
		Status   string `json:"status"`
		UploadID string `json:"upload_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "accepted", first.Status)
	require.NotEmpty(t, first.UploadID)

	// Redelivery of the same event is acknowledged without a new upload.
	rec = env.postJSON("/api/storage-events", event)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var second struct {
		Status   string `json:"status"`
		UploadID string `json:"upload_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, "duplicate_ignored", second.Status)
	assert.Equal(t, first.UploadID, second.UploadID)
}

func TestStorageEvent_UnknownBucket(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	rec := env.postJSON("/api/storage-events", map[string]any{
		"bucket": "never-configured",
		"key":    "exports/cur.csv",
		"size":   10,
		"etag":   `"etag"`,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmMapping_RoundTrip(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	rec := env.do(putJSON("/api/mappings", map[string]any{
		"provider":      "aws",
		"target_field":  "billed_cost",
		"source_column": "my_cost_column",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/mappings?provider=aws", nil)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []struct {
			TargetField  string `json:"target_field"`
			SourceColumn string `json:"source_column"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "billed_cost", resp.Data[0].TargetField)
	assert.Equal(t, "my_cost_column", resp.Data[0].SourceColumn)
}

func TestConfirmMapping_UnknownFieldRejected(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	rec := env.do(putJSON("/api/mappings", map[string]any{
		"provider":      "aws",
		"target_field":  "no_such_field",
		"source_column": "whatever",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPollIntegration_Manual(t *testing.T) {
	client := &fakeS3{objects: map[string]fakeObject{
		"exports/cur.csv": {body: []byte(testCSV), etag: `"etag-1"`},
	}}
	env := newServerEnv(t, client)

	rec := env.postJSON("/api/integrations", integrationdomain.CreateIntegrationRequest{
		Bucket:   "tenant-bucket",
		Prefix:   "exports/",
		Region:   "us-east-1",
		AuthMode: string(integrationdomain.AuthModeRole),
		RoleARN:  "arn:aws:iam::123456789012:role/billing-read",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.postJSON("/api/integrations/"+created.Data.ID+"/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ctx := tenantContext(env.tenantID)
	uploads, err := env.uploads.List(ctx, uploaddomain.ListUploadsRequest{})
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, uploaddomain.StatusCompleted, uploads[0].Status)
}

func TestCreateIntegration_DuplicateConflicts(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	req := integrationdomain.CreateIntegrationRequest{
		Bucket:   "tenant-bucket",
		Prefix:   "exports/",
		Region:   "us-east-1",
		AuthMode: string(integrationdomain.AuthModeRole),
		RoleARN:  "arn:aws:iam::123456789012:role/billing-read",
	}
	require.Equal(t, http.StatusOK, env.postJSON("/api/integrations", req).Code)

	rec := env.postJSON("/api/integrations", req)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestIntegrationResponse_NeverExposesSecrets(t *testing.T) {
	env := newServerEnv(t, &fakeS3{})

	rec := env.postJSON("/api/integrations", integrationdomain.CreateIntegrationRequest{
		Bucket:          "tenant-bucket",
		Region:          "us-east-1",
		AuthMode:        string(integrationdomain.AuthModeKeys),
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "super-secret-value",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "super-secret-value")

	req := httptest.NewRequest(http.MethodGet, "/api/integrations", nil)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret-value")
	assert.NotContains(t, rec.Body.String(), "secret_key_ciphertext")
}

func putJSON(path string, body any) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func tenantContext(id snowflake.ID) context.Context {
	return tenantctx.WithTenantID(context.Background(), id)
}
