package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/biosync/internal/config"
	"github.com/your-org/biosync/internal/models"
)

// TemplateArchive keeps raw template blobs in object storage, outside
// the hot database path. Archival is best-effort: the database row is
// the source of truth and an archive failure never fails an enrollment.
type TemplateArchive struct {
	client *minio.Client
	bucket string
}

func NewTemplateArchive(cfg config.MinIOConfig) (*TemplateArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &TemplateArchive{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (a *TemplateArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func templateKey(userID uuid.UUID, fingerIndex int) string {
	return fmt.Sprintf("templates/%s/%d.bin", userID, fingerIndex)
}

// Archive stores the combined template blob for one enrolled finger,
// overwriting any previous version.
func (a *TemplateArchive) Archive(ctx context.Context, rec *models.FingerprintRecord) error {
	data := rec.CombinedTemplate
	if len(data) == 0 {
		data = rec.Template
	}
	key := templateKey(rec.UserID, rec.FingerIndex)
	reader := bytes.NewReader(data)
	_, err := a.client.PutObject(ctx, a.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("archive template %s: %w", key, err)
	}
	return nil
}

// Fetch retrieves an archived template blob.
func (a *TemplateArchive) Fetch(ctx context.Context, userID uuid.UUID, fingerIndex int) ([]byte, error) {
	key := templateKey(userID, fingerIndex)
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", key, err)
	}
	return data, nil
}

// Remove deletes one finger's archived template.
func (a *TemplateArchive) Remove(ctx context.Context, userID uuid.UUID, fingerIndex int) error {
	return a.client.RemoveObject(ctx, a.bucket, templateKey(userID, fingerIndex), minio.RemoveObjectOptions{})
}

// RemoveUser deletes every archived template a user has, in a single
// batch request.
func (a *TemplateArchive) RemoveUser(ctx context.Context, userID uuid.UUID) error {
	prefix := fmt.Sprintf("templates/%s/", userID)

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				return
			}
			objectsCh <- obj
		}
	}()

	for result := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("remove template %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// Ping checks object storage connectivity.
func (a *TemplateArchive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}
