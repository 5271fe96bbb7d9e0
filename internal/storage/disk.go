package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) Save(_ context.Context, name, contentType string, r io.Reader, maxBytes int64) (Object, error) {
	if !validName(name) {
		return Object{}, ErrInvalidName
	}

	path := filepath.Join(d.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("storage: create %s: %w", name, err)
	}

	cr := &capReader{r: r, limit: maxBytes}
	written, copyErr := io.Copy(f, cr)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn().Err(rmErr).Str("file", name).Msg("failed to remove partial upload")
		}
		if cr.exceeded {
			return Object{}, ErrTooLarge
		}
		if copyErr != nil {
			return Object{}, fmt.Errorf("storage: write %s: %w", name, copyErr)
		}
		return Object{}, fmt.Errorf("storage: close %s: %w", name, closeErr)
	}

	return Object{Name: name, Size: written, ContentType: contentType}, nil
}

func (d *DiskStore) Open(_ context.Context, name string) (io.ReadCloser, Object, error) {
	if !validName(name) {
		return nil, Object{}, ErrInvalidName
	}

	path := filepath.Join(d.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, fmt.Errorf("storage: open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, Object{}, ErrNotFound
	}

	return f, Object{
		Name:        name,
		Size:        info.Size(),
		ContentType: TypeForName(name),
	}, nil
}

func (d *DiskStore) Remove(_ context.Context, name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	err := os.Remove(filepath.Join(d.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", name, err)
	}
	return nil
}
