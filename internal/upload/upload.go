// Package upload stores avatar images in an S3-compatible bucket.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// PublicURL is the prefix objects are served from, e.g. a CDN or the
	// bucket's website endpoint.
	PublicURL string `yaml:"public_url"`
	PathStyle bool   `yaml:"path_style"`
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Host uploads objects under a caller-chosen key. Uploading to an existing
// key overwrites it.
type S3Host struct {
	api       putObjectAPI
	bucket    string
	publicURL string
	now       func() time.Time
}

func NewS3Host(ctx context.Context, cfg Config) (*S3Host, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("upload: bucket is required")
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
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newS3Host(client, cfg), nil
}

func newS3Host(api putObjectAPI, cfg Config) *S3Host {
	public := cfg.PublicURL
	if public == "" {
		public = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Host{api: api, bucket: cfg.Bucket, publicURL: strings.TrimRight(public, "/"), now: time.Now}
}

// Upload writes body under publicID and returns its public URL. The URL
// carries a version parameter so clients refetch an overwritten avatar.
func (h *S3Host) Upload(ctx context.Context, body io.Reader, size int64, contentType, publicID string) (string, error) {
	key := strings.TrimLeft(publicID, "/")
	_, err := h.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return h.publicURL + "/" + key + "?v=" + strconv.FormatInt(h.now().Unix(), 10), nil
}

// GravatarURL returns the identicon-backed Gravatar image for email.
func GravatarURL(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?d=identicon"
}
