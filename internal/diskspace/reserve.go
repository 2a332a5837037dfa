package diskspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReserveFileName is the fixed placeholder under the data directory whose
// existence means "this much slack has not yet been sacrificed".
const ReserveFileName = "disk_reserve.bin"

// ReserveSize is the reserve file size in bytes.
const ReserveSize = 20 * 1024 * 1024

// reservePath returns the reserve file location for a data directory.
func reservePath(dataDir string) string {
	return filepath.Join(dataDir, ReserveFileName)
}

// EnsureReserve creates the reserve file if it does not exist. Called once at
// daemon startup; the file is never recreated after an emergency deletion
// within the same run.
func EnsureReserve(dataDir string) error {
	path := reservePath(dataDir)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat reserve file: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create reserve file: %w", err)
	}
	defer f.Close()

	// Written, not truncated: a sparse file occupies no blocks, so deleting
	// it would free nothing.
	buf := make([]byte, 1<<20)
	for remaining := ReserveSize; remaining > 0; remaining -= len(buf) {
		chunk := buf
		if remaining < len(buf) {
			chunk = buf[:remaining]
		}
		if _, err := f.Write(chunk); err != nil {
			_ = os.Remove(path)
			return fmt.Errorf("write reserve file: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("sync reserve file: %w", err)
	}
	return nil
}

// removeReserve deletes the reserve file and returns the bytes freed.
// Idempotent: a missing file frees zero bytes and is not an error, which
// keeps a poller-triggered deletion race-safe against a concurrent manual
// request.
func removeReserve(dataDir string) (uint64, error) {
	path := reservePath(dataDir)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat reserve file: %w", err)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("remove reserve file: %w", err)
	}
	return uint64(info.Size()), nil
}
