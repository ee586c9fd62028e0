package storage

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (p *recordingPutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.input = in
	p.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestPutKycDocument(t *testing.T) {
	putter := &recordingPutter{}
	store := NewDocumentStore(putter, "kyc-bucket")
	profileID := uuid.New()

	key, err := store.PutKycDocument(context.Background(), profileID, "Aadhaar.JPG", "image/jpeg", []byte("img"))
	require.NoError(t, err)

	assert.Regexp(t, "^kyc/"+profileID.String()+`/[0-9a-f-]{36}\.jpg$`, key)
	assert.Equal(t, "kyc-bucket", aws.ToString(putter.input.Bucket))
	assert.Equal(t, key, aws.ToString(putter.input.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(putter.input.ContentType))
	assert.Equal(t, []byte("img"), putter.body)
}

func TestPutKycDocumentError(t *testing.T) {
	store := NewDocumentStore(&recordingPutter{err: assert.AnError}, "b")

	_, err := store.PutKycDocument(context.Background(), uuid.New(), "doc.pdf", "application/pdf", nil)
	assert.ErrorIs(t, err, assert.AnError)
}
