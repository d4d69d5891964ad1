package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/likhity/photohunter-backend/internal/config"
)

// StorageError wraps an object-store failure that survived the ACL
// retry. The caller decides whether to fall back to local media storage.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// aclRejectionCodes are the error codes that mean the bucket refused the
// configured canned ACL (ownership-enforced buckets return the first).
// Any of these triggers exactly one retry with no ACL applied.
var aclRejectionCodes = map[string]bool{
	"AccessControlListNotSupported": true,
	"AccessDenied":                  true,
	"InvalidRequest":                true,
	"NotImplemented":                true,
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4PresignedRequest, error)
}

// v4PresignedRequest mirrors the field of the SDK presign result we use.
type v4PresignedRequest struct {
	URL string
}

type sdkPresigner struct {
	inner *s3.PresignClient
}

func (p *sdkPresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4PresignedRequest, error) {
	req, err := p.inner.PresignGetObject(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return &v4PresignedRequest{URL: req.URL}, nil
}

// S3Gateway uploads, presigns and deletes objects in one bucket.
type S3Gateway struct {
	client       s3API
	presigner    s3Presigner
	bucket       string
	customDomain string
	defaultACL   string
	logger       zerolog.Logger
}

func NewS3Gateway(ctx context.Context, cfg config.S3Config, logger zerolog.Logger) (*S3Gateway, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Gateway{
		client:       client,
		presigner:    &sdkPresigner{inner: s3.NewPresignClient(client)},
		bucket:       cfg.Bucket,
		customDomain: cfg.CustomDomain,
		defaultACL:   cfg.DefaultACL,
		logger:       logger,
	}, nil
}

// Upload stores payload under <folder>/<uuid>.<extension> and returns
// the durable URL. The payload must be a complete in-memory copy: the
// request body is consumed once, and the ACL retry reuses the same
// bytes through a fresh reader.
func (g *S3Gateway) Upload(ctx context.Context, payload []byte, folder, extension string) (string, error) {
	key := fmt.Sprintf("%s/%s.%s", folder, uuid.NewString(), extension)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("image/" + extension),
	}
	if g.defaultACL != "" {
		input.ACL = types.ObjectCannedACL(g.defaultACL)
	}

	_, err := g.client.PutObject(ctx, input)
	if err != nil && g.defaultACL != "" && isACLRejection(err) {
		g.logger.Warn().Err(err).Str("key", key).Str("acl", g.defaultACL).
			Msg("bucket rejected canned ACL, retrying without ACL")
		retry := &s3.PutObjectInput{
			Bucket:      aws.String(g.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String("image/" + extension),
		}
		_, err = g.client.PutObject(ctx, retry)
	}
	if err != nil {
		return "", &StorageError{Op: "upload", Cause: err}
	}

	return g.urlFor(key), nil
}

// Presign returns a time-limited GET URL for a previously uploaded key.
func (g *S3Gateway) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := g.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", &StorageError{Op: "presign", Cause: err}
	}
	return req.URL, nil
}

// ExtractKey is the inverse of the durable URL scheme. It returns ""
// for URLs that do not belong to this bucket. Presigned URLs are only
// recognized when the custom domain is the bucket endpoint the signer
// emits, which the configuration contract requires.
func (g *S3Gateway) ExtractKey(url string) string {
	prefix := "https://" + g.customDomain + "/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	key := strings.TrimPrefix(url, prefix)
	// Presigned variants carry a query string; the key never does.
	if i := strings.IndexByte(key, '?'); i >= 0 {
		key = key[:i]
	}
	return key
}

// Delete removes an object, best-effort. Failures are logged and
// swallowed; cleanup must never affect the submission response.
func (g *S3Gateway) Delete(ctx context.Context, key string) bool {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("failed to delete object")
		return false
	}
	return true
}

func (g *S3Gateway) urlFor(key string) string {
	return "https://" + g.customDomain + "/" + key
}

func isACLRejection(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return aclRejectionCodes[ae.ErrorCode()]
	}
	return false
}
