package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/kendall-kelly/marketplace-client/config"
	"github.com/kendall-kelly/marketplace-client/utils"
)

// AttachmentResolver turns an attachment ref into a URL the UI can load
type AttachmentResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// ResolveAttachmentURL joins a server-relative storage path onto baseURL.
// Absolute URLs pass through and staged local files map to the preview route.
func ResolveAttachmentURL(baseURL, ref string) string {
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, utils.LocalRefPrefix):
		return utils.StagedAttachmentURL(strings.TrimPrefix(ref, utils.LocalRefPrefix))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	}
	path := strings.TrimPrefix(ref, "/")
	path = strings.TrimPrefix(path, "storage/")
	return strings.TrimRight(baseURL, "/") + "/" + path
}

// StorageURLResolver resolves refs against the public storage host
type StorageURLResolver struct {
	BaseURL string
}

func (r StorageURLResolver) ResolveURL(_ context.Context, ref string) (string, error) {
	return ResolveAttachmentURL(r.BaseURL, ref), nil
}

// S3Presigner is the part of s3.PresignClient the resolver uses
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3AttachmentResolver signs GET URLs for attachments kept in a private bucket
type S3AttachmentResolver struct {
	presigner S3Presigner
	bucket    string
	expires   time.Duration
}

// NewS3AttachmentResolver builds a presigning resolver from the AWS settings in cfg
func NewS3AttachmentResolver(ctx context.Context, cfg *appConfig.Config) (*S3AttachmentResolver, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig)
	return NewS3AttachmentResolverWithPresigner(s3.NewPresignClient(client), cfg.AWSS3Bucket, time.Hour), nil
}

// NewS3AttachmentResolverWithPresigner is used with a custom or fake presigner
func NewS3AttachmentResolverWithPresigner(presigner S3Presigner, bucket string, expires time.Duration) *S3AttachmentResolver {
	return &S3AttachmentResolver{presigner: presigner, bucket: bucket, expires: expires}
}

func (r *S3AttachmentResolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, utils.LocalRefPrefix) ||
		strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ResolveAttachmentURL("", ref), nil
	}

	key := strings.TrimPrefix(strings.TrimPrefix(ref, "/"), "storage/")
	request, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = r.expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return request.URL, nil
}
