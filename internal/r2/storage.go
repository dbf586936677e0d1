package r2

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	conf "github.com/trunov/freshconnect-images/internal/config"
	"github.com/trunov/freshconnect-images/internal/upload"
)

const keyPrefix = "images/"

// putter is the part of manager.Uploader the storage needs.
type putter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Storage puts listing images into an R2 bucket. It satisfies upload.Uploader,
// so a successful put yields the object's public URL.
type Storage struct {
	Bucket        string
	PublicBaseURL string

	uploader putter
	log      *zap.Logger
}

func NewStorage(ctx context.Context, cfg *conf.R2Config, log *zap.Logger) (*Storage, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	log.Info("R2 client initialized", zap.String("bucket", cfg.BucketName), zap.String("endpoint", endpoint))

	return newStorage(manager.NewUploader(client), cfg.BucketName, cfg.PublicBaseURL, log), nil
}

func newStorage(u putter, bucket, publicBaseURL string, log *zap.Logger) *Storage {
	return &Storage{
		Bucket:        bucket,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		uploader:      u,
		log:           log,
	}
}

// Upload ignores req.Token; the bucket is reached with the service's own
// credentials once the caller has been authorised.
func (s *Storage) Upload(ctx context.Context, req upload.Request) (string, error) {
	key := ObjectKey(req.MediaType)

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(req.Payload),
		ContentType: aws.String(req.MediaType),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", upload.ContextError(ctx, fmt.Sprintf("put %q: %v", key, err))
		}
		return "", fmt.Errorf("%w: put %q: %v", upload.ErrServerRejected, key, err)
	}

	s.log.Debug("image stored in R2", zap.String("key", key), zap.Int("size", len(req.Payload)))

	return s.PublicBaseURL + "/" + key, nil
}

// ObjectKey names a new object after a random UUID with the media type's
// usual extension.
func ObjectKey(mediaType string) string {
	ext := ""
	if m := mimetype.Lookup(mediaType); m != nil {
		ext = m.Extension()
	}
	return keyPrefix + uuid.NewString() + ext
}
