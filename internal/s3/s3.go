package s3

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Client struct {
	client *minio.Client
}

func NewMinioClient(endpoint, accessKey, secretKey string, secure bool) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := c.client.BucketExists(ctx, bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return c.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
	}
	return nil
}

// UploadFile copies a local recording or photo into the bucket and returns its URL.
func (c *Client) UploadFile(ctx context.Context, bucketName, objectName, path string) (string, error) {
	if err := c.EnsureBucketExists(ctx, bucketName); err != nil {
		return "", fmt.Errorf("bucket error: %w", err)
	}

	_, err := c.client.FPutObject(ctx, bucketName, objectName, path, minio.PutObjectOptions{
		ContentType: ContentType(path),
	})
	if err != nil {
		return "", fmt.Errorf("upload error: %w", err)
	}

	return ObjectURL(c.client.EndpointURL().String(), bucketName, objectName), nil
}

func ObjectURL(endpoint, bucketName, objectName string) string {
	return fmt.Sprintf("%s/%s/%s", endpoint, bucketName, objectName)
}

// ContentType guesses the MIME type from the file extension.
func ContentType(path string) string {
	switch ext := filepath.Ext(path); ext {
	case ".ts":
		return "video/mp2t"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
