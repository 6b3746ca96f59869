// Package publish uploads merged round documents.
package publish

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/avery-whitehead/StreetMapsDownload/internal/config"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// Publisher uploads a local file and returns where it landed.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// Nop keeps documents local.
type Nop struct{}

// Publish returns the local path unchanged.
func (Nop) Publish(_ context.Context, localPath string) (string, error) { return localPath, nil }

// New returns the publisher selected by cfg.Target.
func New(cfg config.PublishConfig) (Publisher, error) {
	switch cfg.Target {
	case "", "none":
		return Nop{}, nil
	case "ftp":
		return NewFTP(cfg.FTP)
	case "minio":
		return NewMinIO(cfg.MinIO)
	default:
		return nil, &model.ConfigurationError{Item: "publish.target", Err: eris.Errorf("publish: unknown target %q", cfg.Target)}
	}
}
