package archive

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	appErr "pmcharness/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

// Pack writes the given files as a zstd-compressed tar stream. Entries are stored
// under their base names; missing files are skipped.
func Pack(dst io.Writer, paths ...string) (int, error) {
	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.ResultWrite, "create zstd writer failed")
	}
	tw := tar.NewWriter(zw)

	packed := 0
	for _, path := range paths {
		ok, err := addFile(tw, path)
		if err != nil {
			_ = tw.Close()
			_ = zw.Close()
			return packed, err
		}
		if ok {
			packed++
		}
	}
	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return packed, appErr.Wrapf(err, appErr.ResultWrite, "finish tar stream failed")
	}
	if err := zw.Close(); err != nil {
		return packed, appErr.Wrapf(err, appErr.ResultWrite, "finish zstd stream failed")
	}
	return packed, nil
}

func addFile(tw *tar.Writer, path string) (bool, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, appErr.Wrapf(err, appErr.ResultWrite, "open %s failed", path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return false, appErr.Wrapf(err, appErr.ResultWrite, "stat %s failed", path)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return false, appErr.Wrapf(err, appErr.ResultWrite, "tar header for %s failed", path)
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return false, appErr.Wrapf(err, appErr.ResultWrite, "write tar header failed")
	}
	if _, err := io.Copy(tw, file); err != nil {
		return false, appErr.Wrapf(err, appErr.ResultWrite, "write %s into bundle failed", path)
	}
	return true, nil
}
