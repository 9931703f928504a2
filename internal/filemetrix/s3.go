package filemetrix

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
	"github.com/EOSC-Data-Commons/req-packager/internal/provider"
)

// S3Config is the JSON config of an s3 backend. A dataset id is a key
// prefix under Prefix in Bucket.
type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// S3Backend lists dataset files straight from an S3 or MinIO bucket. The
// declared totals are whatever the bucket holds when asked.
type S3Backend struct {
	client s3.ListObjectsV2APIClient
	bucket string
	prefix string
}

// NewS3Backend creates a backend from cfg.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: missing bucket")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Backend(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Backend(client s3.ListObjectsV2APIClient, bucket, prefix string) *S3Backend {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

// NewS3BackendFromJSON creates an S3Backend from raw JSON config.
func NewS3BackendFromJSON(ctx context.Context, raw json.RawMessage) (*S3Backend, error) {
	var cfg S3Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return NewS3Backend(ctx, cfg)
}

func (b *S3Backend) GetDatasetInfo(ctx context.Context, repoURL, datasetID string) (*models.DatasetInfo, error) {
	files, err := b.ListFiles(ctx, repoURL, datasetID)
	if err != nil {
		return nil, err
	}
	var size int64
	for _, f := range files {
		size += f.SizeBytes
	}
	return &models.DatasetInfo{
		RepoURL:        repoURL,
		DatasetID:      datasetID,
		TotalFiles:     models.Int64(int64(len(files))),
		TotalSizeBytes: models.Int64(size),
	}, nil
}

// ListFiles returns the objects under the dataset prefix with paths
// relative to it. An empty prefix is reported as not found.
func (b *S3Backend) ListFiles(ctx context.Context, repoURL, datasetID string) ([]models.FileEntry, error) {
	prefix := b.datasetPrefix(datasetID)
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	var files []models.FileEntry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", b.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue // directory marker
			}
			files = append(files, models.FileEntry{
				Path:      strings.TrimPrefix(key, prefix),
				SizeBytes: aws.ToInt64(obj.Size),
			})
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("dataset %s in %s: %w", datasetID, repoURL, provider.ErrNotFound)
	}
	return files, nil
}

func (b *S3Backend) datasetPrefix(datasetID string) string {
	return b.prefix + strings.Trim(datasetID, "/") + "/"
}
