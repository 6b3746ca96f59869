package publish

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/config"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// objectPutter is the part of *minio.Client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIO stores documents in an S3-compatible bucket.
type MinIO struct {
	client objectPutter
	bucket string
	prefix string
}

// NewMinIO creates a client for cfg.Endpoint with static credentials.
func NewMinIO(cfg config.MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, &model.ConfigurationError{Item: "publish.minio", Err: eris.New("publish: endpoint and bucket are required")}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, &model.ConfigurationError{Item: "publish.minio.endpoint", Err: eris.Wrap(err, "publish: create minio client")}
	}
	return &MinIO{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Publish uploads localPath as prefix/basename.
func (p *MinIO) Publish(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", eris.Wrap(err, "publish: open document")
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", eris.Wrap(err, "publish: stat document")
	}
	key := path.Join(p.prefix, filepath.Base(localPath))
	if _, err := p.client.PutObject(ctx, p.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType(localPath),
	}); err != nil {
		return "", &model.ExternalServiceError{Provider: "minio", Op: "put", Err: eris.Wrapf(err, "publish: put %s", key)}
	}

	remote := "s3://" + p.bucket + "/" + key
	zap.L().Info("published document", zap.String("target", "minio"), zap.String("url", remote))
	return remote, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
