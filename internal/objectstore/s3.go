package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config configures the S3-backed store. AccessKey/SecretKey may be empty
// to fall back to the ambient credential chain. Endpoint switches to
// path-style addressing for S3-compatible providers such as MinIO.
type S3Config struct {
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	PublicBaseURL string
	PartSizeMB    int64
}

const defaultPartSizeMB = 10

type s3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
}

// NewS3 builds a Store backed by an S3 bucket. Uploads stream through a
// multipart uploader so large files never materialize in process memory.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	partSize := cfg.PartSizeMB
	if partSize <= 0 {
		partSize = defaultPartSizeMB
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize * 1024 * 1024
	})

	return &s3Store{client: client, uploader: uploader, cfg: cfg}, nil
}

func (s *s3Store) Bucket() string { return s.cfg.Bucket }

func (s *s3Store) Put(ctx context.Context, key, contentType string, body io.Reader) (PutResult, error) {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("put object %s: %w", key, err)
	}
	result := PutResult{}
	if out.ETag != nil {
		result.ETag = strings.Trim(*out.ETag, `"`)
	}
	return result, nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// Deleting an already-gone object is not a failure.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object under prefix, page by page. Used when a
// segmented video is deleted so its manifest and segments go together.
func (s *s3Store) DeletePrefix(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		identifiers := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, object := range page.Contents {
			identifiers = append(identifiers, s3types.ObjectIdentifier{Key: object.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.cfg.Bucket),
			Delete: &s3types.Delete{Objects: identifiers, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects under %s: %w", prefix, err)
		}
	}
	return nil
}

func (s *s3Store) URL(key string) string {
	trimmedKey := strings.TrimLeft(key, "/")
	if base := strings.TrimSpace(s.cfg.PublicBaseURL); base != "" {
		return strings.TrimRight(base, "/") + "/" + trimmedKey
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, trimmedKey)
}
