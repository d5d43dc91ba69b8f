package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"time"

	"studio_gallery_server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

var MinIOClient *minio.Client

func ConnectMinIO(cfg *config.Config) error {
	var err error
	MinIOClient, err = minio.New(cfg.MinIOEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	})

	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = MinIOClient.ListBuckets(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}

	// Create bucket if it doesn't exist
	err = createBucketIfNotExists(ctx, cfg.MinIOBucketName)
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	logrus.Info("MinIO connected successfully")
	return nil
}

func createBucketIfNotExists(ctx context.Context, bucketName string) error {
	exists, err := MinIOClient.BucketExists(ctx, bucketName)
	if err != nil {
		return err
	}

	if !exists {
		err = MinIOClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return err
		}
		logrus.WithField("bucket", bucketName).Info("Created bucket")
	}

	return nil
}

// Presigner signs GET URLs for photo objects in one bucket
type Presigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewPresigner(client *minio.Client, bucket string, expiry time.Duration) *Presigner {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Presigner{client: client, bucket: bucket, expiry: expiry}
}

// SignedURL generates a presigned URL for key. Download URLs ask the
// browser to save the file under filename.
func (p *Presigner) SignedURL(ctx context.Context, key string, download bool, filename string) (string, error) {
	var params url.Values
	if download {
		params = url.Values{}
		disposition := "attachment"
		if filename != "" {
			disposition = mime.FormatMediaType("attachment", map[string]string{"filename": filename})
		}
		params.Set("response-content-disposition", disposition)
	}

	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, p.expiry, params)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
