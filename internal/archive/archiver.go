package archive

import (
	"context"
	"os"
	"path"

	appErr "pmcharness/pkg/errors"
	"pmcharness/pkg/utils/logger"

	"go.uber.org/zap"
)

const bundleContentType = "application/zstd"

// Archiver bundles result files of a run and uploads them.
type Archiver struct {
	cfg   Config
	store ObjectStore
}

func NewArchiver(cfg Config, store ObjectStore) *Archiver {
	cfg.ApplyDefaults()
	return &Archiver{cfg: cfg, store: store}
}

// ObjectKey names the bundle of one run.
func (a *Archiver) ObjectKey(runID string) string {
	return path.Join(a.cfg.Prefix, runID+".tar.zst")
}

// Upload packs files into a temporary bundle and stores it under ObjectKey(runID).
func (a *Archiver) Upload(ctx context.Context, runID string, files ...string) (string, error) {
	tmp, err := os.CreateTemp("", "pmc-bundle-*.tar.zst")
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ResultWrite, "create bundle file failed")
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	packed, err := Pack(tmp, files...)
	if err != nil {
		return "", err
	}
	if packed == 0 {
		return "", appErr.New(appErr.ResultWrite).WithMessage("no result files to archive")
	}
	info, err := tmp.Stat()
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ResultWrite, "stat bundle failed")
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return "", appErr.Wrapf(err, appErr.ResultWrite, "rewind bundle failed")
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	key := a.ObjectKey(runID)
	if err := a.store.PutObject(ctx, a.cfg.Bucket, key, tmp, info.Size(), bundleContentType); err != nil {
		return "", err
	}
	stat, err := a.store.StatObject(ctx, a.cfg.Bucket, key)
	if err != nil {
		return "", err
	}
	if stat.SizeBytes != info.Size() {
		return "", appErr.Newf(appErr.ResultWrite, "uploaded bundle has %d bytes, expected %d", stat.SizeBytes, info.Size())
	}
	logger.Info(ctx, "results archived",
		zap.String("bucket", a.cfg.Bucket),
		zap.String("key", key),
		zap.Int("files", packed),
		zap.Int64("bytes", info.Size()),
	)
	return key, nil
}
