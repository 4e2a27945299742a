// Package imagestore keeps uploaded place and user images on the local disk.
// Stored images are referred to by their public path, e.g.
// "uploads/images/<uuid>.png", which is also the URL they are served under.
package imagestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/placeshare/internal/models"
)

const DefaultPublicPrefix = "uploads/images"

var ErrUnsupportedImageType = fmt.Errorf("%w: only png, jpg and jpeg images are accepted", models.ErrValidationFailed)

var ErrOutsideStore = errors.New("path does not belong to the image store")

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpeg",
}

type Store struct {
	dir          string
	publicPrefix string
}

type InitOption func(*Store)

// WithPublicPrefix sets the slash separated prefix of returned image paths.
func WithPublicPrefix(prefix string) InitOption {
	return func(s *Store) {
		s.publicPrefix = strings.Trim(prefix, "/")
	}
}

// New makes sure dir exists and returns a Store writing into it.
func New(dir string, optionsProto ...InitOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("in internal/imagestore/imagestore.go/New(): error while `os.MkdirAll()` calling: %w", err)
	}

	s := &Store{
		dir:          filepath.Clean(dir),
		publicPrefix: DefaultPublicPrefix,
	}
	for _, protoOption := range optionsProto {
		protoOption(s)
	}

	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// PublicPrefix is the URL path prefix stored images are served under.
func (s *Store) PublicPrefix() string {
	return s.publicPrefix
}

// Save sniffs the content type of src, stores it under a random name and
// returns the public path of the stored file.
func (s *Store) Save(src io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return "", ErrUnsupportedImageType
		}
		return "", fmt.Errorf("in internal/imagestore/imagestore.go/Save(): error while `io.ReadFull()` calling: %w", err)
	}
	head = head[:n]

	extension, ok := extensions[http.DetectContentType(head)]
	if !ok {
		return "", ErrUnsupportedImageType
	}

	name := uuid.NewString() + extension
	fileName := filepath.Join(s.dir, name)
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("in internal/imagestore/imagestore.go/Save(): error while `os.OpenFile()` calling: %w", err)
	}

	_, err = io.Copy(file, io.MultiReader(bytes.NewReader(head), src))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("in internal/imagestore/imagestore.go/Save(): error while `io.Copy()` calling: %w", err)
	}

	return path.Join(s.publicPrefix, name), nil
}

func (s *Store) fileName(publicPath string) (string, error) {
	name, found := strings.CutPrefix(publicPath, s.publicPrefix+"/")
	if !found || name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %s", ErrOutsideStore, publicPath)
	}

	return filepath.Join(s.dir, name), nil
}

// Delete removes a file previously returned by Save. Removing a file that is
// already gone is not an error.
func (s *Store) Delete(publicPath string) error {
	if publicPath == "" {
		return nil
	}

	fileName, err := s.fileName(publicPath)
	if err != nil {
		return err
	}

	if err := os.Remove(fileName); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("in internal/imagestore/imagestore.go/Delete(): error while `os.Remove()` calling: %w", err)
	}

	return nil
}
