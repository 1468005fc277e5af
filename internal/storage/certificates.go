// Package storage resolves certificate files kept in S3-compatible object
// storage into time-limited download links.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultLinkExpiry is how long a certificate link stays valid.
const DefaultLinkExpiry = 7 * 24 * time.Hour

// Config holds the object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// LinkExpiry bounds presigned links. S3 caps it at seven days.
	LinkExpiry time.Duration
}

// Presigner is the subset of *minio.Client used here.
type Presigner interface {
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// CertificateLinker turns certificate object keys into presigned URLs.
type CertificateLinker struct {
	client Presigner
	bucket string
	expiry time.Duration
}

// NewMinioCertificateLinker connects to the object store.
func NewMinioCertificateLinker(cfg Config) (*CertificateLinker, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("storage endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewCertificateLinker(client, cfg.Bucket, cfg.LinkExpiry), nil
}

// NewCertificateLinker wraps an existing client.
func NewCertificateLinker(client Presigner, bucket string, expiry time.Duration) *CertificateLinker {
	if expiry <= 0 || expiry > DefaultLinkExpiry {
		expiry = DefaultLinkExpiry
	}
	return &CertificateLinker{client: client, bucket: bucket, expiry: expiry}
}

// CertificateURL returns a download link for the object. The object must
// exist. The link names the file so browsers save it as a PDF.
func (l *CertificateLinker) CertificateURL(ctx context.Context, objectKey string) (string, error) {
	objectKey = strings.TrimPrefix(objectKey, "/")
	if objectKey == "" {
		return "", errors.New("certificate object key is empty")
	}
	if _, err := l.client.StatObject(ctx, l.bucket, objectKey, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat certificate %s: %w", objectKey, err)
	}

	params := url.Values{}
	name := objectKey[strings.LastIndex(objectKey, "/")+1:]
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", name))

	u, err := l.client.PresignedGetObject(ctx, l.bucket, objectKey, l.expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign certificate %s: %w", objectKey, err)
	}
	return u.String(), nil
}
