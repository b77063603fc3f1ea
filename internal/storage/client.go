// Package storage provides S3 access for tenant bucket integrations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/costplane/costplane/internal/integration/domain"
)

var ErrCredentials = errors.New("storage_credentials")

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ClientFactory builds an S3 client scoped to one integration's
// credentials and region.
type ClientFactory interface {
	ClientFor(integ *domain.StorageIntegration) (s3iface.S3API, error)
}

type awsClientFactory struct {
	secrets *Secrets
}

func NewClientFactory(secrets *Secrets) ClientFactory {
	return &awsClientFactory{secrets: secrets}
}

func (f *awsClientFactory) ClientFor(integ *domain.StorageIntegration) (s3iface.S3API, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
	}

	var creds *credentials.Credentials
	switch integ.AuthMode {
	case domain.AuthModeRole:
		creds = stscreds.NewCredentials(sess, integ.RoleARN)
	case domain.AuthModeKeys:
		secret, err := f.secrets.Open(integ.SecretKeyCiphertext)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
		}
		creds = credentials.NewStaticCredentials(integ.AccessKeyID, secret, "")
	default:
		return nil, domain.ErrInvalidAuthMode
	}

	cfg := aws.NewConfig().
		WithRegion(integ.Region).
		WithCredentials(creds)
	return s3.New(sess, cfg), nil
}

// ListObjects walks every object under the integration's prefix.
func ListObjects(ctx context.Context, client s3iface.S3API, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	err := client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				ETag:         aws.StringValue(obj.ETag),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}
