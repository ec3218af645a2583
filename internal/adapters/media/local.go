package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore keeps blobs on the node's filesystem under baseDir and serves
// them under urlPrefix. Suitable for single-node deployments and tests.
type LocalStore struct {
	baseDir   string
	urlPrefix string
}

func NewLocalStore(baseDir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{
		baseDir:   baseDir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
	}, nil
}

func (s *LocalStore) Save(ctx context.Context, name, contentType string, content io.Reader) (string, error) {
	filename := uuid.New().String() + strings.ToLower(filepath.Ext(name))
	target := filepath.Join(s.baseDir, filename)

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return s.urlPrefix + "/" + filename, nil
}

// Delete removes the blob a reference points at. References from other
// stores are ignored.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if !strings.HasPrefix(ref, s.urlPrefix+"/") {
		return nil
	}
	filename := path.Base(ref)
	if err := os.Remove(filepath.Join(s.baseDir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}
