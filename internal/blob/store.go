package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// Store persists uploaded files and returns an opaque reference to each.
type Store interface {
	Put(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ref string) error
}

// LocalStore writes uploads into a directory on local disk.
type LocalStore struct {
	dir      string
	prefix   string
	maxBytes int64
}

// NewLocalStore creates dir if needed. References are returned as
// "<base of dir>/<generated name>", the path clients fetch the file from.
func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, prefix: filepath.Base(dir), maxBytes: maxBytes}, nil
}

// Dir returns the upload directory.
func (s *LocalStore) Dir() string { return s.dir }

// Prefix returns the reference prefix, which is also the URL path uploads are served under.
func (s *LocalStore) Prefix() string { return s.prefix }

// Put stores r under a generated name that keeps filename's extension.
// Uploads larger than the configured limit fail with a validation error
// and leave nothing behind.
func (s *LocalStore) Put(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + sanitizeExt(filename)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", errorutil.NewStorageError(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		return "", errorutil.NewStorageError(err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		return "", errorutil.NewValidationError("image exceeds size limit", map[string]any{"max_bytes": s.maxBytes})
	}
	if err := tmp.Close(); err != nil {
		return "", errorutil.NewStorageError(err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", errorutil.NewStorageError(err)
	}
	committed = true
	return path.Join(s.prefix, name), nil
}

// Remove deletes a previously stored reference. Missing files are ignored.
func (s *LocalStore) Remove(ref string) error {
	name := path.Base(ref)
	if name == "." || name == "/" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext[min(1, len(ext)):] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
