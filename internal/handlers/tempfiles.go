package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"vitrine/internal/services"
)

// tempFiles spools multipart parts to disk for the image store and removes
// whatever is left when the request ends. Stores delete the files they
// upload, so cleanup only catches failed or skipped uploads.
type tempFiles struct {
	dir   string
	paths []string
}

func newTempFiles(dir string) *tempFiles {
	return &tempFiles{dir: dir}
}

// save copies fh to a temp file. Parts that do not sniff as an image are
// rejected with a ValidationError.
func (t *tempFiles) save(fh *multipart.FileHeader) (services.Upload, error) {
	src, err := fh.Open()
	if err != nil {
		return services.Upload{}, services.Validation("could not read file %s", fh.Filename)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return services.Upload{}, services.Validation("could not read file %s", fh.Filename)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return services.Upload{}, services.Validation("file %s is not an image", fh.Filename)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return services.Upload{}, services.Internal(err, "failed to buffer upload")
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext == "" {
		ext = mtype.Extension()
	}
	dst, err := os.CreateTemp(t.dir, "upload-*"+ext)
	if err != nil {
		return services.Upload{}, services.Internal(err, "failed to buffer upload")
	}
	t.paths = append(t.paths, dst.Name())

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return services.Upload{}, services.Internal(err, "failed to buffer upload")
	}
	if err := dst.Close(); err != nil {
		return services.Upload{}, services.Internal(err, "failed to buffer upload")
	}

	return services.Upload{Path: dst.Name(), Name: fh.Filename}, nil
}

func (t *tempFiles) saveAll(files []*multipart.FileHeader) ([]services.Upload, error) {
	uploads := make([]services.Upload, 0, len(files))
	for _, fh := range files {
		u, err := t.save(fh)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

func (t *tempFiles) cleanup() {
	for _, p := range t.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			httpLog.Warn("Failed to remove temp file %s: %v", p, err)
		}
	}
	t.paths = nil
}
