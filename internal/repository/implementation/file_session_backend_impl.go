package implementation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deep-research-agent/internal/repository/contract"
	"deep-research-agent/pkg/validation"
)

const sessionFileExt = ".json"

// FileSessionBackendImpl stores one JSON document per session inside dir.
// Writes go through a temp file in the same directory followed by a rename,
// so a crash mid-write leaves the previous version intact.
type FileSessionBackendImpl struct {
	dir  string
	perm os.FileMode
}

func NewFileSessionBackend(dir string, perm os.FileMode) (contract.SessionBackend, error) {
	if perm == 0 {
		perm = 0o600
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, validation.Wrap("sessions_dir", "cannot be created", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, validation.Wrap("sessions_dir", "cannot be resolved", err)
	}
	return &FileSessionBackendImpl{dir: abs, perm: perm}, nil
}

func (b *FileSessionBackendImpl) pathFor(id string) (string, error) {
	return validation.ValidateFilePath(id+sessionFileExt, b.dir, false)
}

func (b *FileSessionBackendImpl) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.pathFor(id)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(b.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync session: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Chmod(tempPath, b.perm); err != nil {
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}

	success = true
	return nil
}

func (b *FileSessionBackendImpl) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.pathFor(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, contract.ErrRecordNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	return data, nil
}

func (b *FileSessionBackendImpl) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := b.pathFor(id)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove session: %w", err)
	}
	return true, nil
}

func (b *FileSessionBackendImpl) List(ctx context.Context) ([]contract.RecordInfo, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	records := make([]contract.RecordInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, sessionFileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		records = append(records, contract.RecordInfo{
			ID:         strings.TrimSuffix(name, sessionFileExt),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	return records, nil
}
