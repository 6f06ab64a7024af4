package handler

import (
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"storefront/model"
)

// ImageStore keeps uploaded product images and hands back the stored name.
type ImageStore interface {
	Save(file multipart.File, header *multipart.FileHeader) (string, error)
	Remove(name string) error
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// DiskImageStore writes images into Dir under random names.
type DiskImageStore struct {
	Dir string
}

func (d DiskImageStore) Save(file multipart.File, header *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !imageExts[ext] {
		return "", &model.ValidationError{Field: "image", Reason: "unsupported file type " + ext}
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + ext
	out, err := os.OpenFile(filepath.Join(d.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		_ = os.Remove(out.Name())
		return "", err
	}
	return name, out.Close()
}

func (d DiskImageStore) Remove(name string) error {
	return os.Remove(filepath.Join(d.Dir, filepath.Base(name)))
}
