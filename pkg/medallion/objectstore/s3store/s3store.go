// Package s3store reads source files from MinIO or any S3-compatible bucket.
package s3store

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/zeebo/errs"

	"github.com/cognicore/medallion/pkg/medallion/internalerr"
	"github.com/cognicore/medallion/pkg/medallion/objectstore"
)

// Error is the class of object store errors.
var Error = errs.Class("s3store")

// Config holds the bucket connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Store implements objectstore.Store over a minio client.
type Store struct {
	client *minio.Client
	bucket string
}

var _ objectstore.Store = (*Store)(nil)

// New connects to the endpoint. No request is made until first use.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, Error.Wrap(fmt.Errorf("%w: endpoint and bucket required", internalerr.ErrInvalidConfig))
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// List walks every object under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	var out []objectstore.Object
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    objectstore.CleanPrefix(prefix),
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, Error.Wrap(fmt.Errorf("%w: list %s: %v", internalerr.ErrStoreUnavailable, s.bucket, info.Err))
		}
		out = append(out, objectstore.Object{Key: info.Key, Size: info.Size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get downloads key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, Error.Wrap(fmt.Errorf("%w: %s", internalerr.ErrNotFound, key))
		}
		return nil, Error.Wrap(err)
	}
	return data, nil
}
