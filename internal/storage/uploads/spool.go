package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cardland/jared-relay/internal/config"
)

// ErrTooLarge is returned when an uploaded part exceeds the configured ceiling.
var ErrTooLarge = errors.New("uploads: part exceeds size limit")

// Spool stages uploaded parts on disk for the duration of a single request.
// Assets have no identity beyond that request; the handler that stashed one
// is responsible for removing it on every exit path.
type Spool struct {
	root     string
	maxBytes int64
}

// Asset is one spooled upload. Remove is safe to call more than once.
type Asset struct {
	path        string
	Size        int64
	ContentType string
}

func NewSpool(cfg config.UploadsConfig) (*Spool, error) {
	dir := strings.TrimSpace(cfg.Directory)
	if dir == "" {
		dir = "./data/tmp"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{
		root:     dir,
		maxBytes: int64(cfg.MaxSizeMB) * 1024 * 1024,
	}, nil
}

// Stash copies a multipart part into the spool, enforcing the byte ceiling
// without ever holding more than the copy buffer in memory.
func (s *Spool) Stash(fh *multipart.FileHeader) (*Asset, error) {
	if fh == nil {
		return nil, errors.New("uploads: nil file header")
	}
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return nil, ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open part: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Join(s.root, uuid.NewString()), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	limit := s.maxBytes
	if limit <= 0 {
		limit = fh.Size
	}
	written, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return nil, fmt.Errorf("write spool file: %w", err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		_ = os.Remove(dst.Name())
		return nil, ErrTooLarge
	}

	return &Asset{
		path:        dst.Name(),
		Size:        written,
		ContentType: fh.Header.Get("Content-Type"),
	}, nil
}

// Sweep removes any spool files left behind by a previous process. Assets
// never outlive a request, so anything present at startup is stale.
func (s *Spool) Sweep() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ReadAll returns the spooled bytes.
func (a *Asset) ReadAll() ([]byte, error) {
	return os.ReadFile(a.path)
}

// Remove deletes the backing file.
func (a *Asset) Remove() error {
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
