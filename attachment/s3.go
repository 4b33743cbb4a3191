// Package attachment issues storage locations for task attachments.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultURLExpiration is how long an upload URL stays valid.
const DefaultURLExpiration = 300 * time.Second

// ErrNoBucket is returned when no bucket is configured.
var ErrNoBucket = errors.New("attachment: bucket is required")

// Presigner signs S3 requests. *s3.PresignClient implements it.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Signer issues attachment locations in one S3 bucket, keyed by todo id.
type S3Signer struct {
	bucket     string
	expiration time.Duration
	presigner  Presigner
}

// NewS3Signer creates a signer over client. A non-positive expiration
// selects DefaultURLExpiration.
func NewS3Signer(client *s3.Client, bucket string, expiration time.Duration) (*S3Signer, error) {
	return NewS3SignerWithPresigner(s3.NewPresignClient(client), bucket, expiration)
}

// NewS3SignerWithPresigner creates a signer over an existing presigner.
func NewS3SignerWithPresigner(p Presigner, bucket string, expiration time.Duration) (*S3Signer, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	if expiration <= 0 {
		expiration = DefaultURLExpiration
	}
	return &S3Signer{bucket: bucket, expiration: expiration, presigner: p}, nil
}

// AttachmentURL returns the virtual-hosted location of todoID's attachment.
func (s *S3Signer) AttachmentURL(todoID string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, url.PathEscape(todoID))
}

// UploadURL presigns a PUT of todoID's attachment.
func (s *S3Signer) UploadURL(ctx context.Context, todoID string) (string, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(todoID),
	}, s3.WithPresignExpires(s.expiration))
	if err != nil {
		return "", fmt.Errorf("attachment: presign %s: %w", todoID, err)
	}
	return req.URL, nil
}

// Expiration returns how long issued upload URLs stay valid.
func (s *S3Signer) Expiration() time.Duration {
	return s.expiration
}
