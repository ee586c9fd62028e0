// Package storage keeps uploaded KYC documents in S3-compatible object
// storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// ObjectPutter is the part of *s3.Client the store needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DocumentStore uploads identity documents.
type DocumentStore struct {
	client ObjectPutter
	bucket string
}

// NewDocumentStore wraps an existing client.
func NewDocumentStore(client ObjectPutter, bucket string) *DocumentStore {
	return &DocumentStore{client: client, bucket: bucket}
}

// NewS3DocumentStore loads AWS credentials from the environment. A
// non-empty endpoint points the client at MinIO or another S3-compatible
// service.
func NewS3DocumentStore(ctx context.Context, bucket, endpoint string) (*DocumentStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: cfg.Credentials,
		HTTPClient:  cfg.HTTPClient,
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	} else {
		opts.BaseEndpoint = cfg.BaseEndpoint
	}

	return NewDocumentStore(s3.New(opts), bucket), nil
}

// PutKycDocument stores a document under kyc/<profile>/ and returns its key.
func (s *DocumentStore) PutKycDocument(ctx context.Context, profileID uuid.UUID, filename, contentType string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	key := fmt.Sprintf("kyc/%s/%s%s", profileID, uuid.NewString(), ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
