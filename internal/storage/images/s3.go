package images

import (
	"bytes"
	"context"
	appconfig "dream-san/internal/config"
	"dream-san/internal/logger"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// objectPutter is the subset of *s3.Client used by S3Store
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads generated dream images to an S3-compatible bucket
type S3Store struct {
	client  objectPutter
	bucket  string
	baseURL string
	now     func() time.Time
}

// NewS3Store builds a client with static credentials. A custom endpoint
// (MinIO, R2) switches to path-style addressing.
func NewS3Store(ctx context.Context, cfg *appconfig.S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET not configured")
	}

	options := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("error loading S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg), nil
}

func newS3Store(client objectPutter, cfg *appconfig.S3Config) *S3Store {
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = cfg.Endpoint
		} else {
			baseURL = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Put stores png under the user's prefix and returns its public URL
func (s *S3Store) Put(ctx context.Context, userID string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("refusing to store empty image")
	}

	key := objectKey(userID, s.now())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(png),
		ContentType:   aws.String("image/png"),
		ContentLength: aws.Int64(int64(len(png))),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading image: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key)

	logger.Log.WithFields(logrus.Fields{
		"user_id": userID,
		"key":     key,
		"bytes":   len(png),
	}).Info("Stored dream image")

	return url, nil
}

func objectKey(userID string, at time.Time) string {
	return fmt.Sprintf("%s/dream_image_%d.png", userID, at.UnixMilli())
}
