// Package documents provides access to onboarding documents kept in object
// storage, currently just the company W9 form attached to contract-signed
// emails.
package documents

import (
	"context"
	"fmt"
	"io"

	"peachhaus_crm_backend/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store fetches documents from object storage.
type Store interface {
	FetchW9(ctx context.Context) ([]byte, error)
}

// NoopStore is used when no object storage is configured. Emails fall back
// to linking the hosted document instead of attaching it.
type NoopStore struct{}

func (NoopStore) FetchW9(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("document storage is not configured")
}

// MinIOStore implements Store using MinIO.
type MinIOStore struct {
	client *minio.Client
	bucket string
	w9Key  string
}

// NewStore builds a Store from config, returning NoopStore when MinIO is
// not configured.
func NewStore(cfg config.DocumentsConfig) (Store, error) {
	if !cfg.IsDocumentsEnabled() {
		return NoopStore{}, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.GetMinioBucketDocuments(),
		w9Key:  cfg.GetW9DocumentKey(),
	}, nil
}

// FetchW9 downloads the W9 PDF bytes from the documents bucket.
func (s *MinIOStore) FetchW9(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.w9Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", s.w9Key, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", s.w9Key, err)
	}
	return data, nil
}
