package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// errObjectNotFound is returned by objectAPI implementations for missing keys.
var errObjectNotFound = errors.New("object not found")

// objectAPI is the slice of an S3 client the object store needs.
type objectAPI interface {
	get(ctx context.Context, bucket, key string) ([]byte, error)
	put(ctx context.Context, bucket, key string, data []byte) error
}

// ObjectConfig locates the bucket holding checkpoint objects.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string

	// Prefix is prepended to every object key, e.g. "checkpoints/".
	Prefix string
}

// ObjectStore keeps each stream's offset in an S3-compatible object.
type ObjectStore struct {
	api    objectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

var _ Store = (*ObjectStore)(nil)

// NewObjectStore connects to the endpoint and makes sure the bucket exists.
func NewObjectStore(ctx context.Context, cfg ObjectConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("checkpoint: object endpoint cannot be empty")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("checkpoint: object bucket cannot be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: connect to %s: %w", cfg.Endpoint, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := ensureBucket(timeoutCtx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, err
	}

	return newObjectStore(&minioAPI{client: client}, cfg.Bucket, cfg.Prefix), nil
}

func newObjectStore(api objectAPI, bucket, prefix string) *ObjectStore {
	return &ObjectStore{
		api:    api,
		bucket: bucket,
		prefix: prefix,
		logger: slog.Default().With("component", "checkpoint", "store", "object", "bucket", bucket),
	}
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("checkpoint: check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		// Another process may have created it in the meantime.
		if exists, errExists := client.BucketExists(ctx, bucket); errExists == nil && exists {
			return nil
		}
		return fmt.Errorf("checkpoint: create bucket %s: %w", bucket, err)
	}
	return nil
}

// Key returns the object key holding stream's offset.
func (s *ObjectStore) Key(stream string) string {
	return s.prefix + stream + FileExtension
}

// Read returns the stored offset, or 0.
func (s *ObjectStore) Read(ctx context.Context, stream string) int {
	if err := ValidateStream(stream); err != nil {
		s.logger.Warn("checkpoint read skipped", "stream", stream, "err", err)
		return 0
	}

	data, err := s.api.get(ctx, s.bucket, s.Key(stream))
	if err != nil {
		if !errors.Is(err, errObjectNotFound) {
			s.logger.Warn("checkpoint unreadable, starting from 0", "stream", stream, "err", err)
		}
		return 0
	}

	offset, ok := Parse(data)
	if !ok && len(data) > 0 {
		s.logger.Warn("checkpoint corrupt, starting from 0", "stream", stream, "content", string(data))
	}
	return offset
}

// Write replaces the stored offset.
func (s *ObjectStore) Write(ctx context.Context, stream string, offset int) error {
	if err := checkWrite(stream, offset); err != nil {
		return err
	}
	if err := s.api.put(ctx, s.bucket, s.Key(stream), Format(offset)); err != nil {
		return ioError(stream, err)
	}
	return nil
}

// minioAPI implements objectAPI with a minio client.
type minioAPI struct {
	client *minio.Client
}

func (m *minioAPI) get(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateObjectError(err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, translateObjectError(err)
	}
	return data, nil
}

func (m *minioAPI) put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	return err
}

func translateObjectError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %w", errObjectNotFound, err)
	}
	return err
}
