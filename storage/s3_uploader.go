package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader archives the datasets of a run under prefix/runID/.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Uploader(ctx context.Context, bucket, prefix, region string) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: load SDK config: %w", err)
	}

	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: normalisePrefix(prefix),
	}, nil
}

func normalisePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// ObjectKey is the key a local file is archived under.
func (u *S3Uploader) ObjectKey(runID, path string) string {
	return u.prefix + runID + "/" + filepath.Base(path)
}

// UploadFiles puts each file. Missing files are skipped.
func (u *S3Uploader) UploadFiles(ctx context.Context, runID string, paths ...string) error {
	for _, p := range paths {
		f, err := os.Open(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("s3: open %q: %w", p, err)
		}

		_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(u.ObjectKey(runID, p)),
			Body:        f,
			ContentType: aws.String(contentType(p)),
		})
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("s3: upload %q: %w", p, err)
		}
	}
	return nil
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
