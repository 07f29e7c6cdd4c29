package adapter

import (
	"context"
	"errors"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// ErrObjectNotFound is returned by Storage.Get for a missing key.
var ErrObjectNotFound = goerr.New("object not found")

// Storage keeps conversation transcripts as JSON objects.
type Storage interface {
	// Put returns a writer; the object is committed when the writer is closed
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get opens an object for reading
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// storageClient implements Storage on a Cloud Storage bucket
type storageClient struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

type StorageOption func(*storageClient)

// WithPrefix puts every object under prefix in the bucket.
func WithPrefix(prefix string) StorageOption {
	return func(s *storageClient) { s.prefix = prefix }
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string, opts ...StorageOption) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	s := &storageClient{
		bucketName: bucketName,
		client:     client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *storageClient) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucketName).Object(path.Join(s.prefix, key))
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	writer := s.object(key).NewWriter(ctx)
	writer.ContentType = "application/json"
	return writer, nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(ErrObjectNotFound, "no such transcript",
				goerr.V("bucket", s.bucketName), goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to read from storage",
			goerr.V("bucket", s.bucketName), goerr.V("key", key))
	}

	return reader, nil
}
