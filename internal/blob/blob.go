// Package blob uploads user media to an S3-compatible object store and
// returns the public URL of the stored object.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("blob: object storage is not configured")

// Uploader stores content under destinationID and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, destinationID, contentType string) (string, error)
}

// S3Config describes the bucket and how to reach it. Endpoint is only set
// for S3-compatible servers such as MinIO.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base URL objects are served from. Empty derives it
	// from Endpoint or the AWS virtual-hosted style.
	PublicURL string
}

// Enabled reports whether enough is configured to build an S3Uploader.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// putObjectAPI is the part of *s3.Client the uploader calls.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader puts objects into one bucket.
type S3Uploader struct {
	client putObjectAPI
	cfg    S3Config
}

var _ Uploader = (*S3Uploader)(nil)

// NewS3Uploader loads the AWS configuration and builds the client. Static
// credentials win over the default chain when both keys are set.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO and friends only speak path-style
			o.UsePathStyle = true
		}
	})

	return newS3Uploader(client, cfg), nil
}

func newS3Uploader(client putObjectAPI, cfg S3Config) *S3Uploader {
	return &S3Uploader{client: client, cfg: cfg}
}

// Upload reads r fully and stores it under destinationID, overwriting any
// previous object with the same key.
func (u *S3Uploader) Upload(ctx context.Context, r io.Reader, destinationID, contentType string) (string, error) {
	// the SDK signs the payload, which needs a seekable body
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("blob: reading upload: %w", err)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(destinationID),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("blob: putting %s: %w", destinationID, err)
	}

	return u.objectURL(destinationID), nil
}

func (u *S3Uploader) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	switch {
	case u.cfg.PublicURL != "":
		return strings.TrimRight(u.cfg.PublicURL, "/") + "/" + escaped
	case u.cfg.Endpoint != "":
		return strings.TrimRight(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, escaped)
	}
}

// Disabled is the Uploader used when no bucket is configured. Every upload
// fails, which surfaces to the client as an upload failure.
type Disabled struct{}

func (Disabled) Upload(context.Context, io.Reader, string, string) (string, error) {
	return "", ErrNotConfigured
}
