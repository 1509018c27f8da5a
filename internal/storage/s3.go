package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3 store.
type S3Config struct {
	Bucket string
	Region string

	// Endpoint is set for S3-compatible services such as MinIO.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool

	// PublicURL is the prefix objects are reachable under. Defaults to the
	// virtual-hosted AWS URL of the bucket.
	PublicURL string
	Prefix    string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store stores objects in an S3 bucket.
type S3Store struct {
	client    putObjectAPI
	bucket    string
	prefix    string
	publicURL string
}

// NewS3Store builds a client from cfg. Static credentials are used when both
// keys are set, otherwise the default credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		switch {
		case cfg.Endpoint != "":
			publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		default:
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, awsCfg.Region)
		}
	}
	return newS3Store(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, publicURL), nil
}

func newS3Store(client putObjectAPI, bucket, prefix, publicURL string) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Store uploads data under a random key and returns its public URL.
func (s *S3Store) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := (Upload{Data: data, ContentType: contentType}).Validate(); err != nil {
		return "", err
	}
	key, err := newKey(contentType)
	if err != nil {
		return "", err
	}
	key = s.prefix + key

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.publicURL + "/" + key, nil
}
