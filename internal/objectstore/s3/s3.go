// Package s3 uploads learner attachments to an S3 bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"tutor/internal/domain"
)

// credentialErrorCodes are S3 error codes meaning the caller is not
// authenticated rather than that the request was wrong.
var credentialErrorCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
}

type Config struct {
	Bucket string
	Region string
	// BaseURL is the public prefix objects are served from. Empty means the
	// virtual-hosted S3 URL of the bucket.
	BaseURL string
}

type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Store implements domain.ObjectStore.
type Store struct {
	api     api
	creds   aws.CredentialsProvider
	bucket  string
	baseURL string
}

// New loads the default AWS credential chain. Missing credentials are not an
// error here; they surface on the first upload so the tutor still starts.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, awsCfg.Region)
	}
	return &Store{
		api:     s3.NewFromConfig(awsCfg),
		creds:   awsCfg.Credentials,
		bucket:  cfg.Bucket,
		baseURL: base,
	}, nil
}

// URL returns the public URL of key.
func (s *Store) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// Upload stores body under key and returns its public URL.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if err := s.checkCredentials(ctx); err != nil {
		return "", err
	}
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", classify(err)
	}
	return s.URL(key), nil
}

// Ping checks credentials and that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.checkCredentials(ctx); err != nil {
		return err
	}
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return classify(err)
}

func (s *Store) checkCredentials(ctx context.Context) error {
	if s.creds == nil {
		return fmt.Errorf("%w: no AWS credential provider", domain.ErrCredentialsMissing)
	}
	if _, err := s.creds.Retrieve(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCredentialsMissing, err)
	}
	return nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) && credentialErrorCodes[ae.ErrorCode()] {
		return fmt.Errorf("%w: %w", domain.ErrCredentialsMissing, err)
	}
	return err
}
