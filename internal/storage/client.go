// Package storage archives schema artifacts in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/streamgov/streamgov-backend/internal/models"
)

// ObjectInfo describes a stored artifact.
type ObjectInfo struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	Checksum string `json:"checksum"` // sha256 of content, hex
	Size     int64  `json:"size"`
}

// ObjectStore is the artifact storage surface the applier consumes.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// DeletePrefix removes every object under the prefix and returns the
	// count; any per-object failure aborts with an error.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	TestConnection(ctx context.Context) models.ConnectionTestResult
}

// Client is the minio-backed ObjectStore implementation.
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient builds a client for one storage endpoint.
func NewClient(endpoint *models.StorageEndpoint) (*Client, error) {
	if endpoint.Bucket == "" {
		return nil, fmt.Errorf("storage endpoint %s has no bucket", endpoint.ID)
	}
	mc, err := minio.New(endpoint.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(endpoint.AccessKey, endpoint.SecretKey, ""),
		Secure: endpoint.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client for %s: %w", endpoint.ID, err)
	}
	return &Client{mc: mc, bucket: endpoint.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Put uploads one object. The content hash is always attached as object
// metadata alongside whatever the caller provides (change_id, schema_type).
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (ObjectInfo, error) {
	checksum := Checksum(data)
	userMeta := map[string]string{"Content-Hash": checksum}
	for k, v := range metadata {
		userMeta[k] = v
	}
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: userMeta,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return ObjectInfo{
		Key:      key,
		URL:      fmt.Sprintf("s3://%s/%s", c.bucket, key),
		Checksum: checksum,
		Size:     int64(len(data)),
	}, nil
}

// Get downloads one object.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// DeletePrefix removes every object under the prefix. The walk stops at the
// first failure so a partial delete is reported, not silently swallowed.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return deleted, fmt.Errorf("list objects under %s: %w", prefix, obj.Err)
		}
		if err := c.mc.RemoveObject(ctx, c.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return deleted, fmt.Errorf("delete object %s: %w", obj.Key, err)
		}
		deleted++
	}
	return deleted, nil
}

// TestConnection probes the store and never returns an error; failures are
// reported in the result.
func (c *Client) TestConnection(ctx context.Context) models.ConnectionTestResult {
	start := time.Now()
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.ConnectionTestResult{Success: false, LatencyMs: latency, Error: err.Error()}
	}
	return models.ConnectionTestResult{
		Success:   true,
		LatencyMs: latency,
		Metadata:  map[string]string{"bucket": c.bucket, "bucket_exists": fmt.Sprintf("%t", exists)},
	}
}

// Checksum returns the hex sha256 of the content.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ArtifactKey is the canonical object key for a registered schema version.
func ArtifactKey(env models.Environment, subject string, version int) string {
	return fmt.Sprintf("%s/%s/%d/schema.txt", envSegment(env), subject, version)
}

// UploadKey is the object key for a raw uploaded file before registration.
func UploadKey(env models.Environment, uploadID, filename string) string {
	return fmt.Sprintf("%s/uploads/%s/%s", envSegment(env), uploadID, filename)
}

// SubjectPrefix is the object prefix holding every artifact of a subject.
func SubjectPrefix(env models.Environment, subject string) string {
	return fmt.Sprintf("%s/%s/", envSegment(env), subject)
}

func envSegment(env models.Environment) string {
	return strings.ToLower(string(env))
}
