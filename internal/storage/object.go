package storage

import (
	"compress/gzip"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// OpenObject streams an object's body, transparently decompressing
// gzip payloads. Callers must close the returned reader.
func OpenObject(ctx context.Context, client s3iface.S3API, bucket, key string) (io.ReadCloser, error) {
	out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(key, ".gz") || strings.EqualFold(aws.StringValue(out.ContentEncoding), "gzip") {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			out.Body.Close()
			return nil, err
		}
		return &gzipReadCloser{gz: gz, body: out.Body}, nil
	}
	return out.Body, nil
}

type gzipReadCloser struct {
	gz   *gzip.Reader
	body io.ReadCloser
}

func (r *gzipReadCloser) Read(p []byte) (int, error) { return r.gz.Read(p) }

func (r *gzipReadCloser) Close() error {
	gzErr := r.gz.Close()
	bodyErr := r.body.Close()
	if gzErr != nil {
		return gzErr
	}
	return bodyErr
}
